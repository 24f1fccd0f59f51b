// Tool-call fragment accumulation.
//
// Streaming providers deliver a tool call as many deltas: the id and name
// may arrive on one chunk and the argument JSON dribble in over dozens more,
// split at arbitrary byte boundaries. The accumulator merges fragments by
// call index and parses the assembled arguments once the turn ends.

package stream

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/notewell/notewell/internal/jsonx"
	"github.com/notewell/notewell/llm"
)

// ToolCallChunk is one in-flight accumulation cell, keyed by call index.
type ToolCallChunk struct {
	Index int
	ID    string
	Name  string
	Args  string
}

// NativeToolCall is a complete, invocable tool call.
type NativeToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// RawArguments returns the arguments re-encoded as JSON for transcripts.
func (c NativeToolCall) RawArguments() json.RawMessage {
	raw, err := json.Marshal(c.Arguments)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

// Accumulator merges fragmented tool-call deltas into complete calls.
// One accumulator serves one streamed turn; not safe for concurrent use.
type Accumulator struct {
	cells    map[int]*ToolCallChunk
	warnings []string
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{cells: make(map[int]*ToolCallChunk)}
}

// Ingest merges one fragment into the cell for its index. Name and argument
// fragments concatenate in arrival order; the first non-empty id wins.
func (a *Accumulator) Ingest(delta llm.ToolCallDelta) {
	cell, ok := a.cells[delta.Index]
	if !ok {
		cell = &ToolCallChunk{Index: delta.Index}
		a.cells[delta.Index] = cell
	}

	if cell.ID == "" && delta.ID != "" {
		cell.ID = delta.ID
	}
	cell.Name += delta.Name
	cell.Args += delta.Args
}

// Len returns the number of distinct calls accumulated so far.
func (a *Accumulator) Len() int {
	return len(a.cells)
}

// TrimIncomplete drops cells whose accumulated arguments are not complete
// JSON, returning the number dropped. Called when a stream is cut short so
// a dangling partial call is never surfaced.
func (a *Accumulator) TrimIncomplete() int {
	dropped := 0
	for index, cell := range a.cells {
		if cell.Args == "" {
			continue
		}
		if !json.Valid([]byte(cell.Args)) {
			delete(a.cells, index)
			dropped++
		}
	}
	return dropped
}

// Finalize parses every accumulated cell into a NativeToolCall, ordered by
// index. Unparsable arguments are repaired to an empty map with a recorded
// warning; malformed arguments must not abort the turn.
func (a *Accumulator) Finalize() []NativeToolCall {
	if len(a.cells) == 0 {
		return nil
	}

	indices := make([]int, 0, len(a.cells))
	for index := range a.cells {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	calls := make([]NativeToolCall, 0, len(indices))
	for _, index := range indices {
		cell := a.cells[index]

		args, err := jsonx.ParseArguments(cell.Args)
		if err != nil {
			a.warnings = append(a.warnings,
				fmt.Sprintf("tool call %q: malformed arguments repaired to empty: %v", cell.Name, err))
		}

		calls = append(calls, NativeToolCall{
			ID:        cell.ID,
			Name:      cell.Name,
			Arguments: args,
		})
	}
	return calls
}

// Warnings returns warnings recorded during finalization.
func (a *Accumulator) Warnings() []string {
	return a.warnings
}
