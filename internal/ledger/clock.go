package ledger

import "time"

// Clock supplies timestamps for ledger operations. The only assumed property
// is monotone non-decreasing readings.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
