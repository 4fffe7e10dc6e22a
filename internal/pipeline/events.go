package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/Caia-Tech/bitext-miner/internal/quality"
)

// EventType represents the type of mining event
type EventType string

const (
	EventRunStarted     EventType = "run.started"
	EventRunCompleted   EventType = "run.completed"
	EventRunFailed      EventType = "run.failed"
	EventPhaseStarted   EventType = "phase.started"
	EventPhaseCompleted EventType = "phase.completed"
	EventPairResolved   EventType = "pair.resolved"
	EventPairAccepted   EventType = "pair.accepted"
	EventPairRejected   EventType = "pair.rejected"
	EventPageFailed     EventType = "page.failed"
)

// Phase names a pipeline stage
type Phase string

const (
	PhaseEnumerate Phase = "enumerate"
	PhaseResolve   Phase = "resolve"
	PhaseScrape    Phase = "scrape"
	PhaseWrite     Phase = "write"
)

// MiningEvent represents something that happened during a mining run
type MiningEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	URL       string                 `json:"url,omitempty"`
	Phase     Phase                  `json:"phase,omitempty"`
	Rule      quality.Rule           `json:"rule,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewMiningEvent creates a new mining event
func NewMiningEvent(eventType EventType, runID, url string) *MiningEvent {
	return &MiningEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		URL:       url,
		Metadata:  make(map[string]interface{}),
	}
}

// WithPhase tags the event with the pipeline stage it came from
func (e *MiningEvent) WithPhase(phase Phase) *MiningEvent {
	e.Phase = phase
	return e
}

// WithRule tags the event with the quality rule that decided it
func (e *MiningEvent) WithRule(rule quality.Rule) *MiningEvent {
	e.Rule = rule
	return e
}

// WithError attaches a failure description
func (e *MiningEvent) WithError(err error) *MiningEvent {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
