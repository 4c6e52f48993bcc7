package monitor

import (
	"math"
	"time"
)

// UpdateDelay is the default log-pull backoff: a sigmoid of elapsed time,
//
//	delay(t) = 0.5s + 30s / (1 + e^(-0.01*t + 9))
//
// which stays near half a second for the first ten minutes, crosses the
// midpoint around fifteen, and levels off at 30.5s. Long-running jobs get
// polled coarsely while short ones stream almost live. Monotonically
// non-decreasing in t, as the running-wait loop requires.
func UpdateDelay(elapsed time.Duration) time.Duration {
	t := elapsed.Seconds()
	sigmoid := 1.0 / (1.0 + math.Exp(-0.01*t+9.0))
	return time.Duration((0.5 + sigmoid*30.0) * float64(time.Second))
}
