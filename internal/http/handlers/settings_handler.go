// README: Runtime settings handlers (radius, bucket width).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roam/internal/modules/samples"
)

type SettingsHandler struct {
	samples *samples.Service
}

func NewSettingsHandler(svc *samples.Service) *SettingsHandler {
	return &SettingsHandler{samples: svc}
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.samples.Settings())
}

type radiusReq struct {
	RadiusKm float64 `json:"radius_km"`
}

// SetRadius handles PUT /api/settings/radius.
func (h *SettingsHandler) SetRadius(c *gin.Context) {
	var req radiusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.samples.SetOperatingRadius(req.RadiusKm); err != nil {
		writeSampleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, h.samples.Settings())
}

type bucketWidthReq struct {
	Minutes int `json:"minutes"`
}

// SetBucketWidth handles PUT /api/settings/bucket-width. Applies to
// subsequent observations only; history keeps its buckets.
func (h *SettingsHandler) SetBucketWidth(c *gin.Context) {
	var req bucketWidthReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.samples.SetBucketWidth(req.Minutes); err != nil {
		writeSampleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, h.samples.Settings())
}
