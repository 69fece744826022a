package services

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// DurationRange is a half-open [Min, Max) interval
type DurationRange struct {
	Min time.Duration
	Max time.Duration
}

// pick draws uniformly from the range
func (r DurationRange) pick(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rng.Int63n(int64(r.Max-r.Min)))
}

// TypingOptions configures the indicator timing
type TypingOptions struct {
	Visible DurationRange
	Hidden  DurationRange
	// Rand is the random source; nil seeds from the clock
	Rand *rand.Rand
	// OnChange is called on every visibility toggle
	OnChange func(visible bool)
	// Wait sleeps for d and reports false once ctx is done; nil uses a timer
	Wait func(ctx context.Context, d time.Duration) bool
}

// DefaultTypingOptions returns the production timing
func DefaultTypingOptions() TypingOptions {
	return TypingOptions{
		Visible: DurationRange{Min: 500 * time.Millisecond, Max: 2000 * time.Millisecond},
		Hidden:  DurationRange{Min: 300 * time.Millisecond, Max: 1000 * time.Millisecond},
	}
}

// TypingIndicator simulates assistant "typing" while a webhook call is in flight
// The cycle is driven by a goroutine bound to a cancellable context
type TypingIndicator struct {
	mu       sync.Mutex
	opts     TypingOptions
	rng      *rand.Rand
	visible  bool
	toggles  int
	cancel   context.CancelFunc
	done     chan struct{}
	onChange func(bool)
}

// NewTypingIndicator creates a stopped, hidden indicator
func NewTypingIndicator(opts TypingOptions) *TypingIndicator {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Wait == nil {
		opts.Wait = wait
	}
	return &TypingIndicator{
		opts:     opts,
		rng:      rng,
		onChange: opts.OnChange,
	}
}

// Visible reports the current state
func (t *TypingIndicator) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// Running reports whether a cycle is active
func (t *TypingIndicator) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Toggles returns how many visibility changes were emitted
func (t *TypingIndicator) Toggles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.toggles
}

// Start begins the visible/hidden cycle; no-op while already running
func (t *TypingIndicator) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go t.run(ctx, done)
}

// Stop cancels the cycle and waits until the indicator is hidden
// No timer or goroutine survives a Stop
func (t *TypingIndicator) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	t.mu.Lock()
	if t.done == done {
		t.cancel = nil
		t.done = nil
	}
	t.mu.Unlock()
}

func (t *TypingIndicator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer t.setVisible(false)

	for {
		t.setVisible(true)
		if !t.opts.Wait(ctx, t.draw(t.opts.Visible)) {
			return
		}

		t.setVisible(false)
		if !t.opts.Wait(ctx, t.draw(t.opts.Hidden)) {
			return
		}
		// reschedule only while the owning exchange is still in flight
		if ctx.Err() != nil {
			return
		}
	}
}

func (t *TypingIndicator) draw(r DurationRange) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return r.pick(t.rng)
}

func (t *TypingIndicator) setVisible(v bool) {
	t.mu.Lock()
	if t.visible == v {
		t.mu.Unlock()
		return
	}
	t.visible = v
	t.toggles++
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(v)
	}
}

// wait sleeps for d unless ctx is cancelled first
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
