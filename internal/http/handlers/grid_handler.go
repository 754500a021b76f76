// README: Prediction-grid handler: full weekly earnings matrix dump.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roam/internal/modules/earnings"
	"roam/internal/modules/samples"
)

type GridHandler struct {
	predictor *earnings.Predictor
	store     *samples.Store
	samples   *samples.Service
}

func NewGridHandler(predictor *earnings.Predictor, store *samples.Store, samplesSvc *samples.Service) *GridHandler {
	return &GridHandler{predictor: predictor, store: store, samples: samplesSvc}
}

// Get handles GET /api/predictions/grid. Rows follow time.Weekday
// order (Sunday first); columns are time buckets at the current width.
func (h *GridHandler) Get(c *gin.Context) {
	width := h.samples.Settings().BucketWidthMinutes
	matrix := h.predictor.Grid(h.store.EarningsSnapshot(), width)
	writeJSON(c, http.StatusOK, map[string]any{
		"bucket_width_minutes": width,
		"grid":                 matrix,
	})
}
