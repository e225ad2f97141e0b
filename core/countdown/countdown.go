// Package countdown derives the remaining viewing time of an access window for display.
// It is never the source of truth for access: the server owns the start time, and
// every state is recomputed from (startedAt, extended, now) so that a reload resumes
// at the right value.
package countdown

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/masomo-materials/core/material"
)

// DefaultInterval is the tick period of a running Countdown.
const DefaultInterval = time.Second

// Compute returns max(0, duration - (now - startedAt)).
func Compute(startedAt time.Time, isExtended bool, now time.Time) time.Duration {
	rem := material.WindowDuration(isExtended) - now.Sub(startedAt)
	if rem < 0 {
		return 0
	}
	return rem
}

// Format renders d as H:MM:SS, truncated to the second (eg. 24:00:00, 0:00:59).
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// State is what the presentation layer renders on each tick.
type State struct {
	Remaining time.Duration
	Expired   bool
}

func (s State) String() string {
	if s.Expired {
		return "expired"
	}
	return Format(s.Remaining)
}

// Countdown ticks the remaining time of one access window.
type Countdown struct {
	StartedAt time.Time
	Extended  bool
	Interval  time.Duration
	Now       func() time.Time // mockable
}

func New(startedAt time.Time, isExtended bool) *Countdown {
	return &Countdown{
		StartedAt: startedAt,
		Extended:  isExtended,
		Interval:  DefaultInterval,
		Now:       time.Now,
	}
}

// State recomputes the current state from the start time.
func (c *Countdown) State() State {
	rem := Compute(c.StartedAt, c.Extended, c.Now())
	return State{Remaining: rem, Expired: rem == 0}
}

// Run calls onTick with the current state immediately, then once per Interval.
// It returns after reporting the expired state, or when ctx is done (the viewing surface closed).
func (c *Countdown) Run(ctx context.Context, onTick func(State)) State {
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	st := c.State()
	onTick(st)
	if st.Expired {
		return st
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return st
		case <-ticker.C:
			st = c.State()
			onTick(st)
			if st.Expired {
				return st
			}
		}
	}
}
