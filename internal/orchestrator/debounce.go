package orchestrator

import (
	"context"
	"sync"
	"time"
)

// Default settling delays (§4.10 Debouncing).
const (
	IdleDebounce        = 1000 * time.Millisecond
	InteractiveDebounce = 200 * time.Millisecond
)

type debounceState int

const (
	stateIdle debounceState = iota
	statePending
	stateRunning
)

// Debouncer implements the Orchestrator's {Idle, Pending{deadline}} model
// from §9 Design Notes ("Debounce via timer handles ... model as two
// states {Idle, Pending{deadline}} ... a single scheduler that advances
// on wall-clock ticks"), plus the Running state §4.10 needs: "if a run is
// already active when inputs change, it cancels it immediately and
// schedules the new run with a shorter settling delay".
type Debouncer struct {
	idleDelay        time.Duration
	interactiveDelay time.Duration
	run              func(ctx context.Context)

	mu        sync.Mutex
	state     debounceState
	timer     *time.Timer
	cancelRun context.CancelFunc
}

// NewDebouncer builds a Debouncer with the spec's default delays. run is
// invoked once the settling delay elapses without a further Trigger.
func NewDebouncer(run func(ctx context.Context)) *Debouncer {
	return &Debouncer{idleDelay: IdleDebounce, interactiveDelay: InteractiveDebounce, run: run, state: stateIdle}
}

// WithDelays overrides the idle/interactive delays (tests only need this
// to avoid waiting a full second).
func (d *Debouncer) WithDelays(idle, interactive time.Duration) *Debouncer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idleDelay = idle
	d.interactiveDelay = interactive
	return d
}

// Trigger records an input change. If no run is active, it (re)schedules
// one idleDelay from now. If a run is currently executing, that run is
// cancelled immediately and the new one is scheduled interactiveDelay
// from now instead, so interactive edits feel responsive.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	delay := d.idleDelay
	if d.state == stateRunning {
		if d.cancelRun != nil {
			d.cancelRun()
			d.cancelRun = nil
		}
		delay = d.interactiveDelay
	}

	d.state = statePending
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.state != statePending {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancelRun = cancel
	d.state = stateRunning
	runFn := d.run
	d.mu.Unlock()

	runFn(ctx)

	d.mu.Lock()
	if d.state == stateRunning {
		d.state = stateIdle
		d.cancelRun = nil
	}
	d.mu.Unlock()
}

// Stop cancels any pending timer and any in-flight run, returning the
// Debouncer to Idle.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancelRun != nil {
		d.cancelRun()
		d.cancelRun = nil
	}
	d.state = stateIdle
}
