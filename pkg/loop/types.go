package loop

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Message is anything handed over to the loop by a Runnable.
type Message interface{}

// Controller defines the controlling logic run once per iteration.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc is the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// Stage orders controllers inside an iteration.
type Stage int

// Stages in execution order.
const (
	StageSense Stage = iota
	StageControl
	StageActuate
	StagePost

	stageCount
)

// Control exposes access to the running loop.
// It's safe to use from any goroutine.
type Control interface {
	// PostMessage enqueues a message for the next iteration.
	PostMessage(Message)
	// TriggerNext schedules the next iteration to run immediately
	// after the current one.
	TriggerNext()
}

// ControlContext provides the context of the current iteration.
type ControlContext interface {
	// Context retrieves context.Context.
	Context() context.Context
	// Time is taken once when the iteration starts and carries
	// the monotonic clock reading.
	Time() time.Time
	// Stage gets the stage being run.
	Stage() Stage
	// Messages retrieves messages collected when the iteration starts.
	Messages() MessageStore

	Control
}

// MessageStore provides access to the messages of an iteration.
type MessageStore interface {
	// ProcessMessages visits messages in arrival order.
	ProcessMessages(MessageProcessor)
	// Len returns the number of messages not yet taken.
	Len() int
}

// MessageProcessor is used by MessageStore to process messages.
type MessageProcessor interface {
	ProcessMessage(MessageProcessingContext)
}

// ProcessMessageFunc is the func form of MessageProcessor.
type ProcessMessageFunc func(MessageProcessingContext)

// ProcessMessage implements MessageProcessor.
func (f ProcessMessageFunc) ProcessMessage(mc MessageProcessingContext) {
	f(mc)
}

// MessageProcessingContext provides context for the current message.
type MessageProcessingContext interface {
	// CurrentMessage gets the message being processed.
	CurrentMessage() Message
	// MessageTaken removes the message from the store.
	MessageTaken()
	// Defer removes the message from this iteration and
	// hands it to the next one.
	Defer()
	// StopProcessing skips the remaining messages.
	StopProcessing()
}
