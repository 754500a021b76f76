// README: Advisory scoring: rank candidate cells by earnings per ETA minute.
package advisor

import (
	"context"
	"log"
	"sort"
	"time"

	"roam/internal/calendar"
	"roam/internal/config"
	"roam/internal/grid"
	"roam/internal/modules/samples"
	"roam/internal/types"
)

// CellSource is the slice of the sample store scoring reads from.
type CellSource interface {
	KnownCells() map[string]grid.Cell
	Latest(cellKey string) (samples.DemandSupplySample, bool)
	CellHourlyRate(cellKey string, dt calendar.DayType, bucket int) (float64, bool)
}

// SpeedSource predicts travel time and speed between two points in a
// time slot (the per-segment estimator).
type SpeedSource interface {
	ETAMinutes(from, to types.Point, at time.Time, cellEdgeMetres float64, bucketWidth int) float64
	RouteSpeedKmh(from, to types.Point, at time.Time, cellEdgeMetres float64, bucketWidth int) float64
}

// Router resolves road distance between two points. Optional; when nil
// or failing, the great-circle distance stands in.
type Router interface {
	RouteDistanceKm(ctx context.Context, from, to types.Point) (float64, error)
}

// SettingsSource exposes the current derivation parameters.
type SettingsSource interface {
	Settings() samples.Settings
}

// Service ranks known cells around the driver and recommends the one
// with the best expected earnings per minute of travel. Scoring is
// read-only over store snapshots and never blocks ingestion.
type Service struct {
	store      CellSource
	speed      SpeedSource
	router     Router
	settings   SettingsSource
	classifier *calendar.Classifier
	cfg        config.EngineConfig
	now        func() time.Time
}

func NewService(store CellSource, speed SpeedSource, router Router, settings SettingsSource, classifier *calendar.Classifier, cfg config.EngineConfig) *Service {
	return &Service{
		store:      store,
		speed:      speed,
		router:     router,
		settings:   settings,
		classifier: classifier,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Candidates lists every known cell within radiusKm of the position,
// ordered by cell key so ranking ties resolve deterministically.
func (s *Service) Candidates(position types.Point, radiusKm float64) []Candidate {
	cells := s.store.KnownCells()
	keys := make([]string, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	set := s.settings.Settings()
	var out []Candidate
	for _, k := range keys {
		cell := cells[k]
		center := cell.Center(set.CellEdgeMetres)
		dist := grid.HaversineKm(position, center)
		if dist > radiusKm {
			continue
		}
		out = append(out, Candidate{CellKey: k, Cell: cell, Center: center, DistanceKm: dist})
	}
	return out
}

// Rank returns the best advisory among the candidates, or false when no
// candidate yields a positive-ETA recommendation. The driver's own cell
// (zero distance) never wins; there is nowhere to go.
func (s *Service) Rank(ctx context.Context, position types.Point, candidates []Candidate, radiusKm float64) (Advisory, bool) {
	now := s.now()
	set := s.settings.Settings()
	bucket := grid.BucketOf(now.Hour(), now.Minute(), set.BucketWidthMinutes)
	dayType := s.classifier.Classify(now)

	best := Advisory{}
	found := false
	for _, c := range candidates {
		eta := s.etaMinutes(ctx, position, c, now, set)
		if eta <= 0 {
			continue
		}

		histRate, ok := s.store.CellHourlyRate(c.CellKey, dayType, bucket)
		if !ok {
			histRate = s.cfg.DefaultHourlyRate
		}

		surge, boost, winProb := s.liveFactors(c.CellKey)
		expected := histRate * surge * (1 + boost) * winProb
		score := expected / eta

		if !found || score > best.Score {
			best = Advisory{
				CellKey:         c.CellKey,
				Target:          c.Center,
				DistanceKm:      c.DistanceKm,
				ETAMinutes:      eta,
				ExpectedPerHour: expected,
				SurgeMultiplier: surge,
				WinProbability:  winProb,
				Score:           score,
				SearchRadiusKm:  radiusKm,
			}
			found = true
		}
	}
	if found {
		best.CandidatesScanned = len(candidates)
	}
	return best, found
}

// Advise is the primary recommendation call: gather candidates around
// the position and rank them. radiusKm <= 0 means the configured
// operating radius.
func (s *Service) Advise(ctx context.Context, position types.Point, radiusKm float64) (Advisory, bool) {
	if radiusKm <= 0 {
		radiusKm = s.settings.Settings().OperatingRadiusKm
	}
	return s.Rank(ctx, position, s.Candidates(position, radiusKm), radiusKm)
}

// etaMinutes estimates travel time to the candidate via the speed
// estimator. When the router resolves a road distance, that distance
// replaces the great-circle one at the same predicted route speed.
func (s *Service) etaMinutes(ctx context.Context, position types.Point, c Candidate, now time.Time, set samples.Settings) float64 {
	if s.router != nil {
		road, err := s.router.RouteDistanceKm(ctx, position, c.Center)
		if err != nil {
			log.Printf("[advisor] route lookup failed for %s: %v", c.CellKey, err)
		} else if road > 0 {
			speed := s.speed.RouteSpeedKmh(position, c.Center, now, set.CellEdgeMetres, set.BucketWidthMinutes)
			if speed <= 0 {
				return 0
			}
			return road / speed * 60.0
		}
	}
	return s.speed.ETAMinutes(position, c.Center, now, set.CellEdgeMetres, set.BucketWidthMinutes)
}

// liveFactors derives surge, demand boost and win probability from the
// cell's most recent sample. All neutral when the cell has none.
func (s *Service) liveFactors(cellKey string) (surge, boost, winProb float64) {
	latest, ok := s.store.Latest(cellKey)
	if !ok {
		return 1, 0, 1
	}

	demand := float64(latest.Passengers)
	supply := float64(latest.Drivers)
	ratio := demand
	if supply > 0 {
		ratio = demand / supply
	}
	switch {
	case ratio >= 2.0:
		surge = 2.0
	case ratio >= 1.5:
		surge = 1.5
	case ratio >= 1.2:
		surge = 1.2
	default:
		surge = 1.0
	}

	boosted := latest.Passengers
	if boosted > 10 {
		boosted = 10
	}
	boost = float64(boosted) * s.cfg.BoostPerPassenger

	winProb = 1 / (1 + supply)
	return surge, boost, winProb
}
