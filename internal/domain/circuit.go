package domain

// CircuitState is the global circuit breaker state.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// String returns the string representation of CircuitState.
func (s CircuitState) String() string {
	return string(s)
}

// Gauge returns a numeric value for metrics export.
func (s CircuitState) Gauge() float64 {
	switch s {
	case CircuitOpen:
		return 1
	case CircuitHalfOpen:
		return 0.5
	default:
		return 0
	}
}

// CircuitStatus is a snapshot of the global breaker.
type CircuitStatus struct {
	State           CircuitState
	FailureCount    int
	SuccessCount    int
	LastStateChange int64 // Unix milliseconds
	Reason          string
}

// AssetCircuitStatus is a snapshot of per-asset breaker state.
type AssetCircuitStatus struct {
	AssetID             string
	Blocked             bool
	ConsecutiveFailures int
	HealthScore         float64 // [0, 100]
	LastValidData       int64   // Unix milliseconds, 0 if never
	LastFailureReason   string
}
