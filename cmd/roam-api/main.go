// README: Entry point; loads config, wires services, starts HTTP server and background flusher.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roam/internal/calendar"
	"roam/internal/config"
	httptransport "roam/internal/http"
	"roam/internal/infra"
	"roam/internal/maps"
	"roam/internal/modules/advisor"
	"roam/internal/modules/earnings"
	"roam/internal/modules/forecast"
	"roam/internal/modules/samples"
	"roam/internal/modules/speed"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (missing file tolerated)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	holidayPairs, err := cfg.HolidayDates()
	if err != nil {
		log.Fatal(err)
	}
	holidays := calendar.DefaultHolidays()
	if len(holidayPairs) > 0 {
		holidays = holidays[:0]
		for _, p := range holidayPairs {
			holidays = append(holidays, calendar.MonthDay{Month: time.Month(p[0]), Day: p[1]})
		}
	}
	classifier := calendar.NewClassifier(holidays)

	var persister samples.Persister
	if cfg.DB.DSN != "" {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer dbPool.Close()
		persister = samples.NewPGPersister(dbPool)
	} else {
		log.Print("[main] no db.dsn configured; running in-memory only")
	}

	var live samples.LiveMirror
	if cfg.Redis.Enabled {
		live = samples.NewRedisLiveMirror(infra.NewRedis(cfg.Redis.Addr), cfg.Engine.RecentWindow)
	}

	var router advisor.Router
	if cfg.Maps.APIKey != "" {
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		router = routeSvc
	}

	store := samples.NewStore(cfg.Engine.FlushBatch)
	estimator := speed.NewEstimator(cfg.Engine)
	samplesSvc := samples.NewService(store, classifier, estimator, persister, live, cfg.Engine)
	advisorSvc := advisor.NewService(store, estimator, router, samplesSvc, classifier, cfg.Engine)
	forecaster := forecast.NewForecaster(store, cfg.Engine)
	predictor := earnings.NewPredictor(cfg.Engine)

	if err := samplesSvc.ReplayPersisted(ctx); err != nil {
		log.Fatalf("replay persisted samples: %v", err)
	}
	go samplesSvc.RunFlusher(ctx)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Samples:    samplesSvc,
		Store:      store,
		Advisor:    advisorSvc,
		Forecaster: forecaster,
		Predictor:  predictor,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Printf("[main] listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
