// README: Advisory domain types.
package advisor

import (
	"roam/internal/grid"
	"roam/internal/types"
)

// Candidate is a repositioning target under consideration: a known cell
// within the search radius of the driver's position.
type Candidate struct {
	CellKey    string
	Cell       grid.Cell
	Center     types.Point
	DistanceKm float64
}

// Advisory is the recommendation returned to the driver.
type Advisory struct {
	CellKey           string      `json:"cell_key"`
	Target            types.Point `json:"target"`
	DistanceKm        float64     `json:"distance_km"`
	ETAMinutes        float64     `json:"eta_minutes"`
	ExpectedPerHour   float64     `json:"expected_per_hour"`
	SurgeMultiplier   float64     `json:"surge_multiplier"`
	WinProbability    float64     `json:"win_probability"`
	Score             float64     `json:"score"`
	SearchRadiusKm    float64     `json:"search_radius_km"`
	CandidatesScanned int         `json:"candidates_scanned"`
}
