// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock provides a swappable time source so scheduler and cache
// tests can control elapsed time instead of sleeping real wall-clock time.
package clock

import "time"

// nowFunc is swapped out in tests via Freeze/Unfreeze.
var nowFunc = time.Now

// Now returns the current time, or a frozen time if the clock has been
// frozen for a test.
func Now() time.Time {
	return nowFunc()
}

// Since returns time.Since(t) using the current clock.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

// Freeze pins Now() to t until Unfreeze is called. Intended for tests only.
func Freeze(t time.Time) {
	nowFunc = func() time.Time { return t }
}

// Unfreeze restores the real wall clock.
func Unfreeze() {
	nowFunc = time.Now
}
