package api

import "time"

type (
	// ExecutionEvent announces a lifecycle transition of an execution
	ExecutionEvent struct {
		Timestamp   time.Time       `json:"timestamp"`
		Data        any             `json:"data,omitempty"`
		Error       *ErrorDetail    `json:"error,omitempty"`
		Type        EventType       `json:"type"`
		ExecutionID ExecutionID     `json:"execution_id"`
		WorkflowID  WorkflowName    `json:"workflow_id"`
		Step        StepName        `json:"step,omitempty"`
		Status      ExecutionStatus `json:"status,omitempty"`
		Attempt     int             `json:"attempt,omitempty"`
	}

	// EventType identifies the kind of execution event
	EventType string

	// SubscribeRequest is sent by websocket clients to select events
	SubscribeRequest struct {
		Data ClientSubscription `json:"data"`
		Type string             `json:"type"`
	}

	// ClientSubscription filters the events delivered to a client. Empty
	// fields match everything
	ClientSubscription struct {
		ExecutionID ExecutionID `json:"execution_id,omitempty"`
		EventTypes  []EventType `json:"event_types,omitempty"`
	}

	// SubscribedResult acknowledges a subscription, carrying the current
	// state of the subscribed execution when one was named
	SubscribedResult struct {
		Execution *Execution  `json:"execution,omitempty"`
		Type      string      `json:"type"`
		ID        ExecutionID `json:"execution_id,omitempty"`
	}
)

const (
	EventExecutionStarted   EventType = "execution_started"
	EventStepStarted        EventType = "step_started"
	EventStepCompleted      EventType = "step_completed"
	EventStepFailed         EventType = "step_failed"
	EventStepRetrying       EventType = "step_retrying"
	EventExecutionCompleted EventType = "execution_completed"
	EventExecutionFailed    EventType = "execution_failed"
)
