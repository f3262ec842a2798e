package monitoring

import (
	"fmt"
	"sync"
)

// Trace stages emitted by the halt matcher.
const (
	StageAnchor     = "anchor"
	StageCandidate  = "candidate"
	StageCorrection = "forward-correction"
	StageUnmatched  = "unmatched"
	StageSwitchOver = "switch-over"
)

// TraceEvent is one structured diagnostic record. Distances are meters.
type TraceEvent struct {
	Stage     string  `json:"stage"`
	HaltIndex int     `json:"halt_index"`
	Station   string  `json:"station,omitempty"`
	Candidate string  `json:"candidate,omitempty"`
	Record    string  `json:"record,omitempty"`
	Expected  float64 `json:"expected"`
	Actual    float64 `json:"actual"`
	Diff      float64 `json:"diff"`
	Accepted  bool    `json:"accepted"`
	Note      string  `json:"note,omitempty"`
}

func (e TraceEvent) String() string {
	verdict := "rejected"
	if e.Accepted {
		verdict = "accepted"
	}
	s := fmt.Sprintf("[%s] halt=%d station=%s candidate=%s expected=%.0f actual=%.0f diff=%.0f %s",
		e.Stage, e.HaltIndex, e.Station, e.Candidate, e.Expected, e.Actual, e.Diff, verdict)
	if e.Note != "" {
		s += " (" + e.Note + ")"
	}
	return s
}

// Tracer receives trace events. Implementations must not influence control flow.
type Tracer interface {
	Trace(TraceEvent)
}

// NopTracer discards every event.
type NopTracer struct{}

func (NopTracer) Trace(TraceEvent) {}

// LogTracer writes events through Logf.
type LogTracer struct {
	Prefix string
}

func (l LogTracer) Trace(e TraceEvent) {
	Logf("%s%s", l.Prefix, e.String())
}

// RecordingTracer keeps every event in memory. Safe for concurrent use.
type RecordingTracer struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (r *RecordingTracer) Trace(e TraceEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *RecordingTracer) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the recorded events for one stage.
func (r *RecordingTracer) Filter(stage string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Events() {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}
