package pvmat

import (
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// playbackDelay is the frame cadence the clock aims for. Each cycle sleeps
// the target minus however long the posting took, floored at zero, so slow
// consumers degrade the cadence instead of accumulating drift.
const playbackDelay = 30 * time.Millisecond

// clock is the playback producer: a background loop that, while playback is
// on, posts one frame-advance event per cycle with its magnifier refresh
// immediately behind it. It never touches shared state; the consumer owns
// every mutation.
type clock struct {
	playing  atomic.Bool
	ticks    atomic.Uint64
	done     chan struct{}
	stopOnce sync.Once
}

func newClock() *clock {
	return &clock{done: make(chan struct{})}
}

// Play switches the clock's output on.
func (c *clock) Play() { c.playing.Store(true) }

// Pause switches the clock's output off without stopping the loop.
func (c *clock) Pause() { c.playing.Store(false) }

// Playing reports whether the clock is posting.
func (c *clock) Playing() bool { return c.playing.Load() }

// Ticks returns how many frame-advance events have been posted.
func (c *clock) Ticks() uint64 { return c.ticks.Load() }

// Stop ends the loop. Safe to call more than once.
func (c *clock) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// run loops until stopped. The tick and its magnifier refresh go out
// back-to-back so the loupe never lags the displayed frame by more than one
// processed event.
func (c *clock) run(send func(tea.Msg)) {
	for {
		start := time.Now()
		if c.playing.Load() {
			send(frameTickMsg{})
			send(magnifierRefreshMsg{})
			c.ticks.Add(1)
		}

		sleep := playbackDelay - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-c.done:
			return
		case <-time.After(sleep):
		}
	}
}
