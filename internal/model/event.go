package model

import "time"

// EventType labels core mutations published to the audit and notification
// sinks.
type EventType string

const (
	EventInstanceCreated      EventType = "instance.created"
	EventStepTransitioned     EventType = "step.transitioned"
	EventProcessStateChanged  EventType = "process.state_changed"
	EventArtifactUploaded     EventType = "artifact.uploaded"
	EventStepCommented        EventType = "step.commented"
	EventInstanceArchived     EventType = "instance.archived"
	EventTemplatePublished    EventType = "template.published"
	EventProcessTypeCreated   EventType = "process_type.created"
	EventTemplateCreated      EventType = "template.created"
)

// Event describes one core mutation. Delivery to sinks is fire-and-forget: a
// sink failure never fails the transition that produced the event.
type Event struct {
	Type              EventType `json:"type"`
	ProcessInstanceID string    `json:"processInstanceId,omitempty"`
	StepInstanceID    string    `json:"stepInstanceId,omitempty"`
	ActorID           string    `json:"actorId"`
	Details           string    `json:"details,omitempty"`
	At                time.Time `json:"at"`
}
