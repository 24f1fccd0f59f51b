// Package stream reconstructs a model response from provider chunks.
//
// The decoder consumes interleaved thinking, text and tool-call deltas in
// whatever shape the provider emits them and produces a single buffer with
// well-formed, non-overlapping thinking blocks, plus truncation and usage
// metadata. Tool-call fragments are routed to an Accumulator for merging.
//
// Information Hiding:
// - Per-provider chunk shape normalization
// - Thinking block open/close bookkeeping
// - Truncation policy internals
package stream

import (
	"strings"

	"github.com/notewell/notewell/llm"
)

// Markers delimiting thinking blocks in the reconstructed buffer.
const (
	ThinkStartMarker = "<think>"
	ThinkEndMarker   = "</think>"
)

// Result is the finalized output of a decoded stream.
type Result struct {
	Content      string
	WasTruncated bool
	Usage        *llm.TokenUsage
	Warnings     []string
}

// Decoder reconstructs one streamed assistant turn chunk by chunk.
// Not safe for concurrent use; each streamed turn owns its own Decoder.
type Decoder struct {
	buf      strings.Builder
	thinking bool // inside an open thinking block
	halted   bool // early-truncation policy tripped; chunks are ignored
	closed   bool

	truncated bool
	usage     *llm.TokenUsage
	warnings  []string
	final     string

	acc      *Accumulator
	onChange func(current string)
}

// NewDecoder creates a decoder feeding tool-call fragments into acc.
// acc may be nil when the turn cannot produce tool calls.
func NewDecoder(acc *Accumulator) *Decoder {
	return &Decoder{acc: acc}
}

// OnChange registers a notification invoked with the full accumulated
// buffer after every chunk that modified it.
func (d *Decoder) OnChange(fn func(current string)) *Decoder {
	d.onChange = fn
	return d
}

// Current returns the accumulated buffer so far.
func (d *Decoder) Current() string {
	return d.buf.String()
}

// ProcessChunk folds one provider chunk into the decoder state.
// Chunks arriving after truncation halted the decoder are dropped.
func (d *Decoder) ProcessChunk(chunk llm.StreamChunk) {
	if d.halted || d.closed {
		return
	}

	if chunk.Usage != nil {
		d.mergeUsage(chunk.Usage)
	}

	before := d.buf.Len()

	// Normalize the provider shape into the open/append/close protocol.
	switch chunk.Kind {
	case llm.ChunkClaude:
		for _, part := range chunk.Parts {
			switch part.Type {
			case llm.PartThinking:
				d.appendThinking(part.Text)
			case llm.PartText:
				d.appendText(part.Text)
			}
		}
	case llm.ChunkDeepSeek, llm.ChunkOpenRouter:
		d.appendThinking(chunk.Reasoning)
		d.appendText(chunk.Text)
	default:
		// Plain shape has no reasoning channel; anything that shows up
		// in one is treated as visible text.
		d.appendText(chunk.Reasoning)
		d.appendText(chunk.Text)
	}

	if d.acc != nil {
		for _, tc := range chunk.ToolCalls {
			d.acc.Ingest(tc)
		}
	}

	if chunk.FinishReason == llm.FinishLength {
		d.truncated = true // sticky, never cleared
		d.halt()
	}

	if d.onChange != nil && d.buf.Len() != before {
		d.onChange(d.buf.String())
	}
}

// appendThinking appends a reasoning delta, opening a thinking block first
// if one is not already open.
func (d *Decoder) appendThinking(delta string) {
	if delta == "" {
		return
	}
	if !d.thinking {
		if d.buf.Len() > 0 && !strings.HasSuffix(d.buf.String(), "\n") {
			d.buf.WriteString("\n")
		}
		d.buf.WriteString(ThinkStartMarker)
		d.buf.WriteString("\n")
		d.thinking = true
	}
	d.buf.WriteString(delta)
}

// appendText appends a visible text delta, closing an open thinking block
// first so thinking and visible segments never overlap.
func (d *Decoder) appendText(delta string) {
	if delta == "" {
		return
	}
	if d.thinking {
		d.buf.WriteString("\n")
		d.buf.WriteString(ThinkEndMarker)
		d.buf.WriteString("\n")
		d.thinking = false
	}
	d.buf.WriteString(delta)
}

// halt stops the decoder after early truncation and discards any
// dangling partial tool call so Finalize never yields an unparsable call.
func (d *Decoder) halt() {
	d.halted = true
	if d.acc != nil {
		dropped := d.acc.TrimIncomplete()
		if dropped > 0 {
			d.warnings = append(d.warnings, "dropped incomplete tool call after truncation")
		}
	}
}

// mergeUsage applies a usage snapshot, last write wins per counter.
// Zero counters inherit the previous snapshot's values since some providers
// split prompt and completion totals across separate chunks.
func (d *Decoder) mergeUsage(u *llm.TokenUsage) {
	if d.usage == nil {
		copied := *u
		d.usage = &copied
		return
	}
	if u.PromptTokens > 0 {
		d.usage.PromptTokens = u.PromptTokens
	}
	if u.CompletionTokens > 0 {
		d.usage.CompletionTokens = u.CompletionTokens
	}
	if u.TotalTokens > 0 {
		d.usage.TotalTokens = u.TotalTokens
	} else {
		d.usage.TotalTokens = d.usage.PromptTokens + d.usage.CompletionTokens
	}
}

// Close finalizes the stream and returns the reconstructed result.
// An open thinking block is force-closed; an end marker with no matching
// start marker is repaired by synthesizing one. Close is idempotent in the
// sense that repeated calls return the same result.
func (d *Decoder) Close() Result {
	if !d.closed {
		if d.thinking {
			d.buf.WriteString("\n")
			d.buf.WriteString(ThinkEndMarker)
			d.buf.WriteString("\n")
			d.thinking = false
		}
		d.final = d.repairMarkers(d.buf.String())
		d.closed = true
	}

	return Result{
		Content:      d.final,
		WasTruncated: d.truncated,
		Usage:        d.usage,
		Warnings:     d.warnings,
	}
}

// repairMarkers synthesizes a start marker when the buffer contains an end
// marker with no start before it. Best-effort repair of malformed upstream
// output, recorded as a warning rather than a failure.
func (d *Decoder) repairMarkers(content string) string {
	end := strings.Index(content, ThinkEndMarker)
	if end == -1 {
		return content
	}
	start := strings.Index(content, ThinkStartMarker)
	if start != -1 && start < end {
		return content
	}

	d.warnings = append(d.warnings, "unmatched thinking end marker; start marker synthesized")
	return ThinkStartMarker + "\n" + content
}
