// README: Per-segment travel-speed estimation with scalar Kalman filters.
package speed

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"roam/internal/config"
	"roam/internal/grid"
	"roam/internal/modules/samples"
	"roam/internal/types"
)

const lockShards = 16

// filterState is one scalar Kalman filter tracking the speed of a single
// (segment, weekday, bucket) key.
type filterState struct {
	estimate      float64 // km/h
	errCovariance float64
	observations  int
}

// Estimator maintains an independent filter per (segment, weekday, time
// bucket). Keys are created lazily on the first observation; until then
// predictions fall back to the configured baseline speed.
type Estimator struct {
	cfg config.EngineConfig

	mu      [lockShards]sync.RWMutex
	filters [lockShards]map[string]*filterState
}

func NewEstimator(cfg config.EngineConfig) *Estimator {
	e := &Estimator{cfg: cfg}
	for i := range e.filters {
		e.filters[i] = make(map[string]*filterState)
	}
	return e
}

func filterKey(segmentKey string, day time.Weekday, bucket int) string {
	return fmt.Sprintf("%s|%d|%d", segmentKey, day, bucket)
}

func (e *Estimator) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % lockShards)
}

// Observe feeds an accepted speed measurement into the filter for its
// key, creating the filter at the baseline on first contact.
func (e *Estimator) Observe(obs samples.SpeedObservation) {
	key := filterKey(obs.SegmentKey, obs.Day, obs.Bucket)
	i := e.shardFor(key)

	e.mu[i].Lock()
	defer e.mu[i].Unlock()

	f, ok := e.filters[i][key]
	if !ok {
		f = &filterState{
			estimate:      e.cfg.BaselineSpeedKmh,
			errCovariance: e.cfg.InitialErrCovariance,
		}
		e.filters[i][key] = f
	}

	// Predict step: only the uncertainty grows between measurements.
	prior := f.errCovariance + e.cfg.ProcessNoise
	gain := prior / (prior + e.cfg.MeasurementNoise)
	f.estimate += gain * (obs.SpeedKmh - f.estimate)
	f.errCovariance = (1 - gain) * prior
	f.observations++
}

// PredictedSpeedKmh returns the current estimate for a key, or the
// baseline speed when no observation has ever touched it.
func (e *Estimator) PredictedSpeedKmh(segmentKey string, day time.Weekday, bucket int) float64 {
	key := filterKey(segmentKey, day, bucket)
	i := e.shardFor(key)

	e.mu[i].RLock()
	defer e.mu[i].RUnlock()
	if f, ok := e.filters[i][key]; ok {
		return f.estimate
	}
	return e.cfg.BaselineSpeedKmh
}

// ETAMinutes estimates travel time from one point to another at the
// route speed currently believed for this time slot.
func (e *Estimator) ETAMinutes(from, to types.Point, at time.Time, cellEdgeMetres float64, bucketWidth int) float64 {
	distKm := grid.HaversineKm(from, to)
	if distKm == 0 {
		return 0
	}
	speed := e.RouteSpeedKmh(from, to, at, cellEdgeMetres, bucketWidth)
	if speed <= 0 {
		speed = e.cfg.BaselineSpeedKmh
	}
	return distKm / speed * 60.0
}

// RouteSpeedKmh predicts the travel speed between two points as the
// mean over the chain of grid segments a straight line between them
// crosses. Not distance-weighted; segments within a chain are close to
// equal length by construction.
func (e *Estimator) RouteSpeedKmh(from, to types.Point, at time.Time, cellEdgeMetres float64, bucketWidth int) float64 {
	bucket := grid.BucketOf(at.Hour(), at.Minute(), bucketWidth)
	return e.MeanSpeedKmh(routeSegments(from, to, cellEdgeMetres), at.Weekday(), bucket)
}

// routeSegments approximates the route from a to b as the consecutive
// cell-to-cell segments the connecting line passes through. These are
// the same keys short speed observations train, so estimates line up
// with ingested state.
func routeSegments(from, to types.Point, cellEdgeMetres float64) []string {
	a := grid.CellOf(from, cellEdgeMetres)
	b := grid.CellOf(to, cellEdgeMetres)

	steps := b.LatIdx - a.LatIdx
	if steps < 0 {
		steps = -steps
	}
	if d := b.LngIdx - a.LngIdx; d > steps || -d > steps {
		steps = d
		if steps < 0 {
			steps = -steps
		}
	}
	if steps == 0 {
		return []string{grid.Segment{From: a, To: b}.Key()}
	}

	segs := make([]string, 0, steps)
	prev := a
	for i := int64(1); i <= steps; i++ {
		t := float64(i) / float64(steps)
		cur := grid.CellOf(types.Point{
			Lat: from.Lat + (to.Lat-from.Lat)*t,
			Lng: from.Lng + (to.Lng-from.Lng)*t,
		}, cellEdgeMetres)
		if cur != prev {
			segs = append(segs, grid.Segment{From: prev, To: cur}.Key())
			prev = cur
		}
	}
	if len(segs) == 0 {
		segs = append(segs, grid.Segment{From: a, To: b}.Key())
	}
	return segs
}

// MeanSpeedKmh averages the estimates of several segment keys for the
// same time slot. Useful when a route is approximated by a chain of
// segments; unknown keys contribute the baseline.
func (e *Estimator) MeanSpeedKmh(segmentKeys []string, day time.Weekday, bucket int) float64 {
	if len(segmentKeys) == 0 {
		return e.cfg.BaselineSpeedKmh
	}
	sum := 0.0
	for _, k := range segmentKeys {
		sum += e.PredictedSpeedKmh(k, day, bucket)
	}
	return sum / float64(len(segmentKeys))
}

// FilterCount reports how many keys hold live filter state.
func (e *Estimator) FilterCount() int {
	n := 0
	for i := range e.filters {
		e.mu[i].RLock()
		n += len(e.filters[i])
		e.mu[i].RUnlock()
	}
	return n
}

var _ samples.SpeedSink = (*Estimator)(nil)
