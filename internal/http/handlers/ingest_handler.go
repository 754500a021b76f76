// README: Ingestion handlers for demand/supply, speed and trip records.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"roam/internal/modules/samples"
	"roam/internal/types"
)

type IngestHandler struct {
	samples *samples.Service
}

func NewIngestHandler(svc *samples.Service) *IngestHandler {
	return &IngestHandler{samples: svc}
}

type demandReq struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Passengers int       `json:"passengers"`
	Drivers    int       `json:"drivers"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// RecordDemand handles POST /api/observations/demand.
func (h *IngestHandler) RecordDemand(c *gin.Context) {
	var req demandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	sample, err := h.samples.RecordDemandSupply(c.Request.Context(), samples.DemandCommand{
		Position:   types.Point{Lat: req.Lat, Lng: req.Lng},
		Passengers: req.Passengers,
		Drivers:    req.Drivers,
		Source:     samples.Source(req.Source),
		Timestamp:  req.Timestamp,
	})
	if err != nil {
		writeSampleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{
		"cell_key": sample.CellKey,
		"bucket":   sample.Bucket,
		"day_type": sample.DayType,
	})
}

type speedReq struct {
	StartLat  float64   `json:"start_lat"`
	StartLng  float64   `json:"start_lng"`
	EndLat    float64   `json:"end_lat"`
	EndLng    float64   `json:"end_lng"`
	Timestamp time.Time `json:"timestamp"`
	DurationS float64   `json:"duration_s"`
}

// RecordSpeed handles POST /api/observations/speed. An implausible
// measurement is not an error; the response says it was not accepted.
func (h *IngestHandler) RecordSpeed(c *gin.Context) {
	var req speedReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	accepted, err := h.samples.RecordSpeedObservation(c.Request.Context(), samples.SpeedCommand{
		Start:     types.Point{Lat: req.StartLat, Lng: req.StartLng},
		End:       types.Point{Lat: req.EndLat, Lng: req.EndLng},
		Timestamp: req.Timestamp,
		DurationS: req.DurationS,
	})
	if err != nil {
		writeSampleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"accepted": accepted})
}

type tripReq struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Amount    float64   `json:"amount"`
	StartLat  float64   `json:"start_lat"`
	StartLng  float64   `json:"start_lng"`
	EndLat    float64   `json:"end_lat"`
	EndLng    float64   `json:"end_lng"`
}

// RecordTrip handles POST /api/trips.
func (h *IngestHandler) RecordTrip(c *gin.Context) {
	var req tripReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	rec, err := h.samples.RecordTrip(c.Request.Context(), samples.TripCommand{
		StartTime: req.StartedAt,
		EndTime:   req.EndedAt,
		Amount:    req.Amount,
		Start:     types.Point{Lat: req.StartLat, Lng: req.StartLng},
		End:       types.Point{Lat: req.EndLat, Lng: req.EndLng},
	})
	if err != nil {
		writeSampleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{
		"cell_key":    rec.CellKey,
		"hourly_rate": rec.HourlyRate,
	})
}
