// Package health holds the canonical record model shared by the parser, the
// writer and the sink, together with the error classes a run can fail with.
package health

import "time"

// MetricType is a canonical metric name as stored in the sink's type column
type MetricType string

const (
	BodyMass  MetricType = "BodyMass"
	HeartRate MetricType = "HeartRate"
	Steps     MetricType = "Steps"
)

// Record is one measurement ready to be persisted.
// Timestamp is always in UTC. Value is the raw text of the export's value
// attribute; the unit is implied by Type.
type Record struct {
	Type      MetricType
	Timestamp time.Time
	Value     string
}
