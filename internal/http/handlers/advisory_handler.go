// README: Advisory handler: where should the driver go next.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roam/internal/modules/advisor"
	"roam/internal/types"
)

type AdvisoryHandler struct {
	advisor *advisor.Service
}

func NewAdvisoryHandler(svc *advisor.Service) *AdvisoryHandler {
	return &AdvisoryHandler{advisor: svc}
}

// Get handles GET /api/advisory?lat=&lng=&radius_km=. No recommendation
// is a valid outcome, reported as found=false rather than an error.
func (h *AdvisoryHandler) Get(c *gin.Context) {
	pos, ok := parsePoint(c)
	if !ok {
		return
	}
	radiusKm := 0.0
	if raw := c.Query("radius_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radiusKm = v
	}

	advice, found := h.advisor.Advise(c.Request.Context(), pos, radiusKm)
	if !found {
		writeJSON(c, http.StatusOK, map[string]any{"found": false})
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"found": true, "advisory": advice})
}

func parsePoint(c *gin.Context) (types.Point, bool) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, "invalid lat/lng")
		return types.Point{}, false
	}
	p := types.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		writeError(c, http.StatusBadRequest, "lat/lng out of range")
		return types.Point{}, false
	}
	return p, true
}
