// README: Forecast handler: arrival-time demand/supply outlook for a cell.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roam/internal/grid"
	"roam/internal/modules/forecast"
	"roam/internal/modules/samples"
)

type ForecastHandler struct {
	forecaster *forecast.Forecaster
	samples    *samples.Service
}

func NewForecastHandler(forecaster *forecast.Forecaster, samplesSvc *samples.Service) *ForecastHandler {
	return &ForecastHandler{forecaster: forecaster, samples: samplesSvc}
}

// Get handles GET /api/forecast?lat=&lng=&travel_minutes=. A zero or
// absent travel time means the driver is already there.
func (h *ForecastHandler) Get(c *gin.Context) {
	pos, ok := parsePoint(c)
	if !ok {
		return
	}
	travelMinutes := 0.0
	if raw := c.Query("travel_minutes"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeError(c, http.StatusBadRequest, "invalid travel_minutes")
			return
		}
		travelMinutes = v
	}

	set := h.samples.Settings()
	cellKey := grid.CellOf(pos, set.CellEdgeMetres).Key()

	fc, ok := h.forecaster.Forecast(cellKey, travelMinutes, set.BucketWidthMinutes)
	if !ok {
		writeError(c, http.StatusNotFound, "no samples for cell")
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"cell_key": cellKey, "forecast": fc})
}
