// Package pickclock implements the per-draft countdown that governs how long
// a team has to act.
package pickclock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultTickInterval is how often the clock samples the remaining time.
	DefaultTickInterval = time.Second
	// FinalCountdown is the window in which every second is reported.
	FinalCountdown = 10 * time.Second
	// CoarseTick is the reporting cadence outside the final countdown.
	CoarseTick = 10 * time.Second
)

// TickFunc receives the remaining time at broadcast-worthy moments.
type TickFunc func(remaining time.Duration)

// ExpireFunc is invoked once when a countdown reaches zero.
type ExpireFunc func()

const (
	stateRunning int32 = iota
	stateFired
	stateCancelled
)

// Countdown is a single running instance of the clock. It is handed out as
// a cancellation handle; callers that hold on to it can cancel it without
// racing a newer countdown.
type Countdown struct {
	clock    clockwork.Clock
	duration time.Duration
	deadline time.Time
	timer    clockwork.Timer
	stop     chan struct{}

	state     atomic.Int32
	mu        sync.Mutex
	remaining time.Duration // frozen on cancel
}

// Duration is the length the countdown was started with.
func (cd *Countdown) Duration() time.Duration { return cd.duration }

// Deadline is when the countdown will expire if left alone.
func (cd *Countdown) Deadline() time.Time { return cd.deadline }

// Fired reports whether onExpire has been claimed.
func (cd *Countdown) Fired() bool { return cd.state.Load() == stateFired }

// Remaining returns the time left, the frozen value after a cancel, or zero
// after expiry.
func (cd *Countdown) Remaining() time.Duration {
	switch cd.state.Load() {
	case stateFired:
		return 0
	case stateCancelled:
		cd.mu.Lock()
		defer cd.mu.Unlock()
		return cd.remaining
	}
	left := cd.deadline.Sub(cd.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Cancel stops the countdown and returns the time that was left. It is
// idempotent and a no-op once the countdown has fired.
func (cd *Countdown) Cancel() time.Duration {
	left := cd.Remaining()
	if !cd.state.CompareAndSwap(stateRunning, stateCancelled) {
		return cd.Remaining()
	}
	cd.mu.Lock()
	cd.remaining = left
	cd.mu.Unlock()
	if cd.timer != nil {
		cd.timer.Stop()
	}
	close(cd.stop)
	return left
}

func (cd *Countdown) fire(onExpire ExpireFunc) {
	if !cd.state.CompareAndSwap(stateRunning, stateFired) {
		return
	}
	close(cd.stop)
	if onExpire != nil {
		onExpire()
	}
}

func (cd *Countdown) tickLoop(ticker clockwork.Ticker, onTick TickFunc) {
	defer ticker.Stop()
	for {
		select {
		case <-cd.stop:
			return
		case <-ticker.Chan():
			left := cd.Remaining()
			if left <= 0 {
				continue
			}
			if shouldReport(left) {
				onTick(left.Round(time.Second))
			}
		}
	}
}

func shouldReport(left time.Duration) bool {
	secs := left.Round(time.Second)
	if secs <= FinalCountdown {
		return true
	}
	return secs%CoarseTick == 0
}

// Clock owns at most one running Countdown. Starting a new countdown always
// cancels the previous one first, so two countdowns can never fire for the
// same owner.
type Clock struct {
	clock        clockwork.Clock
	tickInterval time.Duration

	mu     sync.Mutex
	active *Countdown
}

// Option configures a Clock.
type Option func(*Clock)

// WithTickInterval overrides the sampling interval of onTick.
func WithTickInterval(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.tickInterval = d
		}
	}
}

// New returns an idle Clock reading time from clock.
func New(clock clockwork.Clock, opts ...Option) *Clock {
	c := &Clock{
		clock:        clock,
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a countdown of d. onTick may be nil.
func (c *Clock) Start(d time.Duration, onTick TickFunc, onExpire ExpireFunc) *Countdown {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.active.Cancel()
	}

	cd := &Countdown{
		clock:    c.clock,
		duration: d,
		deadline: c.clock.Now().Add(d),
		stop:     make(chan struct{}),
	}
	c.active = cd

	if d <= 0 {
		go cd.fire(onExpire)
		return cd
	}

	cd.timer = c.clock.AfterFunc(d, func() { cd.fire(onExpire) })
	if onTick != nil {
		go cd.tickLoop(c.clock.NewTicker(c.tickInterval), onTick)
	}
	return cd
}

// Cancel cancels the active countdown, if any, and returns its remaining time.
func (c *Clock) Cancel() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return 0
	}
	left := c.active.Cancel()
	c.active = nil
	return left
}

// Remaining reports the remaining time of the active countdown.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return 0
	}
	return c.active.Remaining()
}

// Active returns the running countdown, or nil.
func (c *Clock) Active() *Countdown {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.state.Load() != stateRunning {
		return nil
	}
	return c.active
}
