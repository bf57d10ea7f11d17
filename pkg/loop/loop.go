package loop

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is used when Loop.Interval is zero.
const DefaultInterval = 100 * time.Millisecond

// Loop runs controllers stage by stage on every tick and keeps
// runnables going in the background.
type Loop struct {
	Interval time.Duration
	// Clock is time.Now unless replaced, mostly by tests.
	Clock func() time.Time

	stages  [stageCount][]Controller
	runners []Runnable

	pending []Message
	lock    sync.Mutex

	wakeUpCh chan struct{}
}

// Adder provides specific logic to add components to a loop.
type Adder interface {
	AddToLoop(*Loop)
}

type ctxKey struct{}

// ControlFrom gets the Control of the loop running ctx.
func ControlFrom(ctx context.Context) (Control, bool) {
	c, ok := ctx.Value(ctxKey{}).(Control)
	return c, ok
}

// New creates a Loop.
func New() *Loop {
	return &Loop{
		Interval: DefaultInterval,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Add adds Adders.
func (l *Loop) Add(adders ...Adder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a stage. Controllers also
// implementing Runnable are started with the loop.
func (l *Loop) AddController(stage Stage, ctls ...Controller) *Loop {
	l.stages[stage] = append(l.stages[stage], ctls...)
	for _, ctl := range ctls {
		if r, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, r)
		}
	}
	return l
}

// AddRunnable adds Runnables.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	ctx = context.WithValue(ctx, ctxKey{}, Control(l))
	runner := NewRunnerWith(ctx)
	runner.Go(l.runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Step(ctx)
		case <-l.wakeUpCh:
			l.Step(ctx)
		}
	}
}

// RunOrFail is intended to be used in main to simply run the loop
// until interrupted.
func (l *Loop) RunOrFail() {
	runner := NewRunner().HandleSignals()
	runner.Go(l)
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}

// PostMessage implements Control.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.pending = append(l.pending, msg)
	l.lock.Unlock()
}

// TriggerNext implements Control.
func (l *Loop) TriggerNext() {
	if l.wakeUpCh == nil {
		return
	}
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Step runs a single iteration synchronously.
func (l *Loop) Step(ctx context.Context) {
	now := time.Now
	if l.Clock != nil {
		now = l.Clock
	}
	iter := &iteration{loop: l, time: now()}
	l.lock.Lock()
	iter.messages, l.pending = l.pending, nil
	l.lock.Unlock()
	iter.ctx = context.WithValue(ctx, ctxKey{}, Control(l))
	for stage := Stage(0); stage < stageCount; stage++ {
		iter.stage = stage
		for _, ctl := range l.stages[stage] {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
	if len(iter.deferred) > 0 {
		l.lock.Lock()
		l.pending = append(iter.deferred, l.pending...)
		l.lock.Unlock()
		l.TriggerNext()
	}
}

type iteration struct {
	loop     *Loop
	ctx      context.Context
	time     time.Time
	stage    Stage
	messages []Message
	deferred []Message
}

func (t *iteration) Context() context.Context { return t.ctx }
func (t *iteration) Time() time.Time          { return t.time }
func (t *iteration) Stage() Stage             { return t.stage }
func (t *iteration) Messages() MessageStore   { return t }
func (t *iteration) PostMessage(msg Message)  { t.loop.PostMessage(msg) }
func (t *iteration) TriggerNext()             { t.loop.TriggerNext() }
func (t *iteration) Len() int                 { return len(t.messages) }

type messageContext struct {
	msg      Message
	taken    bool
	deferred bool
	stop     bool
}

func (c *messageContext) CurrentMessage() Message { return c.msg }
func (c *messageContext) MessageTaken()           { c.taken = true }
func (c *messageContext) Defer()                  { c.deferred = true }
func (c *messageContext) StopProcessing()         { c.stop = true }

func (t *iteration) ProcessMessages(proc MessageProcessor) {
	remains := t.messages[:0]
	for n, msg := range t.messages {
		mctx := &messageContext{msg: msg}
		proc.ProcessMessage(mctx)
		switch {
		case mctx.deferred:
			t.deferred = append(t.deferred, msg)
		case !mctx.taken:
			remains = append(remains, msg)
		}
		if mctx.stop {
			remains = append(remains, t.messages[n+1:]...)
			break
		}
	}
	t.messages = remains
}
