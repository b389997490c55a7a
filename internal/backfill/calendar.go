package backfill

import (
	"iter"
	"time"
)

// BusinessDays yields every Monday-Friday date in [start, end], newest first.
// There is no holiday calendar. The sequence is empty when start is after end
// and can be ranged over any number of times.
func BusinessDays(start, end time.Time) iter.Seq[time.Time] {
	first := civilDate(start)
	last := civilDate(end)

	return func(yield func(time.Time) bool) {
		for d := last; !d.Before(first); d = d.AddDate(0, 0, -1) {
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// civilDate drops the clock and zone so date arithmetic is DST-proof.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
