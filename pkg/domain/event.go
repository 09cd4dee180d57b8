package domain

import "time"

// EventType identifies a generation lifecycle event
type EventType string

const (
	EventTypeGenerationQueued    EventType = "generation.queued"
	EventTypeGenerationStarted   EventType = "generation.started"
	EventTypeGenerationProgress  EventType = "generation.progress"
	EventTypeGenerationCompleted EventType = "generation.completed"
	EventTypeGenerationFailed    EventType = "generation.failed"
)

// TopicGenerations is the event bus topic all lifecycle events are published on
const TopicGenerations = "generation.events"

// Event is a lifecycle notification about a single generation
type Event struct {
	ID           string                 `json:"id"`
	Type         EventType              `json:"type"`
	GenerationID string                 `json:"generation_id"`
	Timestamp    time.Time              `json:"timestamp"`
	Data         map[string]interface{} `json:"data,omitempty"`
}
