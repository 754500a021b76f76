// README: Immutable observation records tagged with cell/bucket/day keys.
package samples

import (
	"time"

	"roam/internal/calendar"
	"roam/internal/grid"
	"roam/internal/types"
)

// Source tags how a demand/supply observation was produced.
type Source string

const (
	SourceManual    Source = "manual"
	SourceAutomatic Source = "automatic"
	SourcePredicted Source = "predicted"
)

// Known reports whether the tag is one of the enumerated sources.
func (s Source) Known() bool {
	switch s {
	case SourceManual, SourceAutomatic, SourcePredicted:
		return true
	}
	return false
}

// DemandSupplySample is one demand/supply observation. Records are
// immutable once created; derivations are computed at ingest time and
// never recomputed.
type DemandSupplySample struct {
	Timestamp  time.Time
	Position   types.Point
	Cell       grid.Cell
	CellKey    string
	Bucket     int
	Day        time.Weekday
	DayType    calendar.DayType
	Passengers int
	Drivers    int
	Source     Source
}

// SpeedObservation is one accepted travel-speed measurement. Implausible
// measurements are dropped before a record is ever created.
type SpeedObservation struct {
	Timestamp  time.Time
	Start      types.Point
	End        types.Point
	SegmentKey string
	DistanceM  float64
	DurationS  float64
	SpeedKmh   float64
	Bucket     int
	Day        time.Weekday
}

// EarningsRecord is one completed trip, the source of truth for
// earnings prediction. HourlyRate is the amount normalized to one hour.
type EarningsRecord struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Amount     float64
	Start      types.Point
	End        types.Point
	Cell       grid.Cell
	CellKey    string
	Day        time.Weekday
	Hour       int
	Bucket     int
	DayType    calendar.DayType
	HourlyRate float64
}

// HourlySample is the snapshot row the earnings predictor consumes.
type HourlySample struct {
	Day     time.Weekday
	Hour    int
	Rate    float64
	Weekend bool
}

// Settings are the derivation parameters applied to subsequent
// observations. They are read through an atomic snapshot, so changes
// never rewrite already-bucketed history.
type Settings struct {
	CellEdgeMetres     float64
	BucketWidthMinutes int
	OperatingRadiusKm  float64
}
