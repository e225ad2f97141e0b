package material

import "time"

// Window durations. An approved extension yields the SHORTER window: the 6h
// window after approval is product policy (scarcity), not a typo.
const (
	StandardWindow = 24 * time.Hour
	ExtendedWindow = 6 * time.Hour
)

// WindowDuration returns the duration of a window given its extension flag.
func WindowDuration(isExtended bool) time.Duration {
	if isExtended {
		return ExtendedWindow
	}
	return StandardWindow
}

// AccessWindow is derived from a VideoAccess; it is never persisted.
type AccessWindow struct {
	StartedAt time.Time
	Extended  bool
}

func (w AccessWindow) Duration() time.Duration { return WindowDuration(w.Extended) }

func (w AccessWindow) Expiry() time.Time { return w.StartedAt.Add(w.Duration()) }

// Remaining is max(0, expiry - now).
func (w AccessWindow) Remaining(now time.Time) time.Duration {
	if rem := w.Expiry().Sub(now); rem > 0 {
		return rem
	}
	return 0
}

func (w AccessWindow) Expired(now time.Time) bool { return w.Remaining(now) == 0 }
