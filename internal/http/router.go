// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roam/internal/http/handlers"
	"roam/internal/http/middleware"
	"roam/internal/modules/advisor"
	"roam/internal/modules/earnings"
	"roam/internal/modules/forecast"
	"roam/internal/modules/samples"
)

type RouterDeps struct {
	Samples    *samples.Service
	Store      *samples.Store
	Advisor    *advisor.Service
	Forecaster *forecast.Forecaster
	Predictor  *earnings.Predictor
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(), middleware.Recovery())

	ingest := handlers.NewIngestHandler(deps.Samples)
	r.POST("/api/observations/demand", ingest.RecordDemand)
	r.POST("/api/observations/speed", ingest.RecordSpeed)
	r.POST("/api/trips", ingest.RecordTrip)

	advisory := handlers.NewAdvisoryHandler(deps.Advisor)
	r.GET("/api/advisory", advisory.Get)

	forecastHandler := handlers.NewForecastHandler(deps.Forecaster, deps.Samples)
	r.GET("/api/forecast", forecastHandler.Get)

	grid := handlers.NewGridHandler(deps.Predictor, deps.Store, deps.Samples)
	r.GET("/api/predictions/grid", grid.Get)

	settings := handlers.NewSettingsHandler(deps.Samples)
	r.GET("/api/settings", settings.Get)
	r.PUT("/api/settings/radius", settings.SetRadius)
	r.PUT("/api/settings/bucket-width", settings.SetBucketWidth)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
