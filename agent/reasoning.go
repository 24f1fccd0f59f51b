// Reasoning state tracking and the inline state marker.
//
// While the agent reasons, a fixed-interval timer re-renders a serialized
// marker carrying status, elapsed seconds and the last few step summaries.
// The marker travels inline in the same text channel as the answer so a
// display layer can parse it back out without a side channel.
//
// Information Hiding:
// - Rolling window eviction policy hidden
// - Marker wire format hidden behind Marker/ParseReasoningMarker
// - Timer lifecycle hidden

package agent

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// ReasoningStatus is the display state of a run's reasoning trace.
type ReasoningStatus string

const (
	StatusIdle      ReasoningStatus = "idle"
	StatusReasoning ReasoningStatus = "reasoning"
	StatusCollapsed ReasoningStatus = "collapsed"
	StatusComplete  ReasoningStatus = "complete"
)

const (
	// reasoningTick is the re-render interval while status is reasoning.
	// The tick doubles as the abort watchdog.
	reasoningTick = 100 * time.Millisecond

	// reasoningWindow bounds the rolling step list shown live.
	reasoningWindow = 4

	reasoningMarkerPrefix = "<!--notewell-reasoning "
	reasoningMarkerSuffix = "-->"
)

// ReasoningStep is one recorded step of an agent run.
type ReasoningStep struct {
	Timestamp time.Time
	Summary   string
	ToolName  string
}

// reasoningEnvelope is the marker wire format.
type reasoningEnvelope struct {
	Status         string   `json:"status"`
	ElapsedSeconds int      `json:"elapsed_seconds"`
	Steps          []string `json:"steps"`
}

// ReasoningMarker is a parsed inline state marker.
type ReasoningMarker struct {
	Status         ReasoningStatus
	ElapsedSeconds int
	Steps          []string
}

// ReasoningTracker records step summaries for one agent run: a rolling
// window of the last few steps for live display plus the unbounded full
// history for the expanded view. Reset by creating a fresh tracker per run.
type ReasoningTracker struct {
	mu        sync.Mutex
	status    ReasoningStatus
	startTime time.Time
	endTime   time.Time
	window    []ReasoningStep
	history   []ReasoningStep
	stop      chan struct{}
}

// NewReasoningTracker creates an idle tracker.
func NewReasoningTracker() *ReasoningTracker {
	return &ReasoningTracker{status: StatusIdle}
}

// Start moves the tracker to reasoning status and launches the re-render
// timer, invoking onTick every interval until Complete is called. onTick
// runs on the timer goroutine.
func (t *ReasoningTracker) Start(onTick func()) {
	t.mu.Lock()
	t.status = StatusReasoning
	t.startTime = time.Now()
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(reasoningTick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				onTick()
			}
		}
	}()
}

// AddStep records a step. The full history always grows; unless
// displayOnly is set the step also enters the rolling window, evicting
// the oldest entry past the window bound.
func (t *ReasoningTracker) AddStep(summary, toolName string, displayOnly bool) {
	step := ReasoningStep{Timestamp: time.Now(), Summary: summary, ToolName: toolName}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, step)
	if displayOnly {
		return
	}
	t.window = append(t.window, step)
	if len(t.window) > reasoningWindow {
		t.window = t.window[1:]
	}
}

// Complete finalizes the tracker and stops the timer. Safe to call more
// than once and from the timer goroutine itself.
func (t *ReasoningTracker) Complete() {
	t.mu.Lock()
	if t.status == StatusReasoning {
		t.status = StatusComplete
		t.endTime = time.Now()
	}
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}

// Status returns the current display status.
func (t *ReasoningTracker) Status() ReasoningStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// History returns a copy of the full step history.
func (t *ReasoningTracker) History() []ReasoningStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	history := make([]ReasoningStep, len(t.history))
	copy(history, t.history)
	return history
}

// Marker renders the current state as a single-line inline marker.
func (t *ReasoningTracker) Marker() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	env := reasoningEnvelope{
		Status:         string(t.status),
		ElapsedSeconds: int(t.elapsedLocked().Seconds()),
		Steps:          make([]string, 0, len(t.window)),
	}
	for _, step := range t.window {
		env.Steps = append(env.Steps, step.Summary)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		payload = []byte("{}")
	}
	return reasoningMarkerPrefix + string(payload) + reasoningMarkerSuffix
}

func (t *ReasoningTracker) elapsedLocked() time.Duration {
	if t.startTime.IsZero() {
		return 0
	}
	if !t.endTime.IsZero() {
		return t.endTime.Sub(t.startTime)
	}
	return time.Since(t.startTime)
}

// ParseReasoningMarker extracts the first inline marker from text,
// returning the parsed state and the text with the marker removed.
// Malformed embedded JSON degrades to an empty step list rather than
// failing.
func ParseReasoningMarker(text string) (ReasoningMarker, string, bool) {
	start := strings.Index(text, reasoningMarkerPrefix)
	if start == -1 {
		return ReasoningMarker{}, text, false
	}
	end := strings.Index(text[start:], reasoningMarkerSuffix)
	if end == -1 {
		return ReasoningMarker{}, text, false
	}

	payload := text[start+len(reasoningMarkerPrefix) : start+end]
	rest := text[:start] + text[start+end+len(reasoningMarkerSuffix):]
	rest = strings.TrimLeft(rest, "\n")

	var env reasoningEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return ReasoningMarker{Status: StatusReasoning, Steps: nil}, rest, true
	}
	return ReasoningMarker{
		Status:         ReasoningStatus(env.Status),
		ElapsedSeconds: env.ElapsedSeconds,
		Steps:          env.Steps,
	}, rest, true
}
