package models

import "time"

// Tick numbering shared by the generator (which stamps ticks) and the
// gateway (which resolves timestamp requests): tick seq covers
// [seq*interval, (seq+1)*interval) and is stamped with the whole second
// its start falls in.

// TickTimestamp returns the unix second tick seq is stamped with.
func TickTimestamp(seq int64, interval time.Duration) int64 {
	return floorDiv(seq*int64(interval), int64(time.Second))
}

// LastSeqAtOrBefore returns the highest seq stamped at or before sec.
func LastSeqAtOrBefore(sec int64, interval time.Duration) int64 {
	return floorDiv((sec+1)*int64(time.Second)-1, int64(interval))
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
