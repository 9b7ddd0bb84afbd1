// Package throttle implements the commerce GraphQL cost-based rate-limit
// controller. It is purely reactive: given the telemetry
// carried on one response, it computes how long the next call should wait.
package throttle

import (
	"math"
	"time"
)

// CostTelemetry is the cost.throttleStatus extension the commerce API
// attaches to every response.
type CostTelemetry struct {
	CurrentlyAvailable float64
	MaximumAvailable   float64
	RestoreRate        float64 // points per second
	RequestedQueryCost float64
}

// bufferFraction is the fraction of MaximumAvailable kept as headroom
// before the controller starts delaying calls.
const bufferFraction = 0.20

// safetyMargin is added on top of the computed restore wait to absorb
// clock skew between this process and the source.
const safetyMargin = 200 * time.Millisecond

// Delay computes how long to wait before issuing the next request, given
// the telemetry from the previous response. A zero CostTelemetry (the
// "unknown telemetry" case) always yields zero delay; the source will
// surface failures itself.
func Delay(t CostTelemetry) time.Duration {
	if t == (CostTelemetry{}) {
		return 0
	}

	buffer := bufferFraction * t.MaximumAvailable
	if t.CurrentlyAvailable > buffer {
		return 0
	}
	if t.RequestedQueryCost <= t.CurrentlyAvailable {
		return 0
	}
	if t.RestoreRate <= 0 {
		return 0
	}

	deficit := t.RequestedQueryCost - t.CurrentlyAvailable
	seconds := math.Ceil(deficit / t.RestoreRate)
	return time.Duration(seconds)*time.Second + safetyMargin
}
