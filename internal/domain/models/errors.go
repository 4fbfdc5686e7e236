package models

import (
	"fmt"
	"time"
)

// DataStaleError means market or funding data is older than the freshness
// threshold. The bar degrades to HOLD with a stale_data veto and an alert;
// it is never a silent pass.
type DataStaleError struct {
	Kind      string // "market" | "funding"
	Age       time.Duration
	Threshold time.Duration
}

func (e *DataStaleError) Error() string {
	return fmt.Sprintf("%s data stale: age %s exceeds %s", e.Kind, e.Age, e.Threshold)
}

// ConfigInvalid is fatal at startup: the instance must not run with an
// empty arm set or out-of-range thresholds.
type ConfigInvalid struct {
	Field  string
	Reason string
}

func (e *ConfigInvalid) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// NumericAnomaly marks a NaN/Inf signal or reward. The offending value is
// discarded, posterior state stays untouched, and an alert is raised.
type NumericAnomaly struct {
	Where string
	Value float64
}

func (e *NumericAnomaly) Error() string {
	return fmt.Sprintf("numeric anomaly in %s: %v", e.Where, e.Value)
}

// ExecutionRejected means the adapter did not fill after bounded retries.
// The decision is downgraded to HOLD; a fill is never assumed.
type ExecutionRejected struct {
	EventID  string
	Attempts int
	Reason   string
}

func (e *ExecutionRejected) Error() string {
	return fmt.Sprintf("execution rejected after %d attempts: %s", e.Attempts, e.Reason)
}
