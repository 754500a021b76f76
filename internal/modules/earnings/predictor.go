// README: Hourly-earnings estimation with a hierarchical fallback search.
package earnings

import (
	"time"

	"roam/internal/calendar"
	"roam/internal/config"
	"roam/internal/grid"
	"roam/internal/modules/samples"
)

// Predictor estimates the hourly earnings a driver can expect for a
// (weekday, hour) slot. It is stateless over the sample snapshot passed
// to each call; the fallback levels are tried in strict order and never
// blended with each other.
type Predictor struct {
	cfg config.EngineConfig
}

func NewPredictor(cfg config.EngineConfig) *Predictor {
	return &Predictor{cfg: cfg}
}

// Predict returns the estimated hourly earnings for the slot, or 0 when
// no level of the fallback hierarchy can produce an estimate.
func (p *Predictor) Predict(pool []samples.HourlySample, day time.Weekday, hour int) float64 {
	estimate, ok := p.predictRaw(pool, day, hour)
	if !ok || estimate < p.cfg.DisplayFloor {
		return 0
	}
	return estimate
}

func (p *Predictor) predictRaw(pool []samples.HourlySample, day time.Weekday, hour int) (float64, bool) {
	if v, ok := p.exactLevel(pool, day, hour); ok {
		return v, true
	}
	if v, ok := p.sameHourLevel(pool, day, hour); ok {
		return v, true
	}
	if v, ok := p.nearbyHoursLevel(pool, day, hour); ok {
		return v, true
	}
	if v, ok := p.dayWideLevel(pool, day); ok {
		return v, true
	}
	return p.globalLevel(pool)
}

// exactLevel: samples from exactly (day, hour), arithmetic mean.
func (p *Predictor) exactLevel(pool []samples.HourlySample, day time.Weekday, hour int) (float64, bool) {
	sum, n := 0.0, 0
	for _, s := range pool {
		if s.Day == day && s.Hour == hour {
			sum += s.Rate
			n++
		}
	}
	if n < p.cfg.MinSamples {
		return 0, false
	}
	return sum / float64(n), true
}

// sameHourLevel: the target hour across all days. Samples from days in
// the same weekend/weekday class as the target count at full weight,
// the rest at the cross-class weight.
func (p *Predictor) sameHourLevel(pool []samples.HourlySample, day time.Weekday, hour int) (float64, bool) {
	targetWeekend := calendar.IsWeekendClass(day)
	var sum, weights float64
	n := 0
	for _, s := range pool {
		if s.Hour != hour {
			continue
		}
		w := 1.0
		if s.Weekend != targetWeekend {
			w = p.cfg.CrossClassWeight
		}
		sum += s.Rate * w
		weights += w
		n++
	}
	if n < p.cfg.MinSamples {
		return 0, false
	}
	return sum / weights, true
}

// nearbyHoursLevel: hours within ±2 of the target, wrapping at the day
// boundary. Same-day samples are boosted; cross-class samples from
// other days are damped.
func (p *Predictor) nearbyHoursLevel(pool []samples.HourlySample, day time.Weekday, hour int) (float64, bool) {
	nearby := map[int]bool{
		(hour + 23) % 24: true,
		(hour + 22) % 24: true,
		(hour + 1) % 24:  true,
		(hour + 2) % 24:  true,
	}
	targetWeekend := calendar.IsWeekendClass(day)
	var sum, weights float64
	n := 0
	for _, s := range pool {
		if !nearby[s.Hour] {
			continue
		}
		w := 1.0
		switch {
		case s.Day == day:
			w = p.cfg.NearbyHourBoost
		case s.Weekend != targetWeekend:
			w = p.cfg.CrossClassWeight
		}
		sum += s.Rate * w
		weights += w
		n++
	}
	if n < p.cfg.MinSamples {
		return 0, false
	}
	return sum / weights, true
}

// dayWideLevel: every sample on the target day regardless of hour,
// discounted for the lost hour specificity.
func (p *Predictor) dayWideLevel(pool []samples.HourlySample, day time.Weekday) (float64, bool) {
	sum, n := 0.0, 0
	for _, s := range pool {
		if s.Day == day {
			sum += s.Rate
			n++
		}
	}
	if n < p.cfg.MinSamples {
		return 0, false
	}
	return sum / float64(n) * p.cfg.DayWideDiscount, true
}

// globalLevel: the mean over everything, heavily discounted. Any
// non-empty pool qualifies so an all-levels miss stays distinguishable
// from a truly empty store.
func (p *Predictor) globalLevel(pool []samples.HourlySample) (float64, bool) {
	if len(pool) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, s := range pool {
		sum += s.Rate
	}
	return sum / float64(len(pool)) * p.cfg.GlobalDiscount, true
}

// Grid produces the full 7×bucketsPerDay matrix of estimates for
// visualization. Row index is time.Weekday order (Sunday first).
func (p *Predictor) Grid(pool []samples.HourlySample, bucketWidthMinutes int) [][]float64 {
	buckets := grid.BucketsPerDay(bucketWidthMinutes)
	out := make([][]float64, 7)
	for d := 0; d < 7; d++ {
		row := make([]float64, buckets)
		for b := 0; b < buckets; b++ {
			row[b] = p.Predict(pool, time.Weekday(d), grid.BucketHour(b, bucketWidthMinutes))
		}
		out[d] = row
	}
	return out
}
