// README: Ingestion service: validation, key derivation, flush loop, replay.
package samples

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"roam/internal/calendar"
	"roam/internal/config"
	"roam/internal/grid"
	"roam/internal/types"
)

var (
	ErrBadObservation = errors.New("malformed observation")
	ErrBadSetting     = errors.New("invalid setting value")
)

// SpeedSink receives accepted speed observations (the estimator).
type SpeedSink interface {
	Observe(obs SpeedObservation)
}

// Persister writes accepted samples to durable storage and loads them
// back at startup. Implementations must be safe for background use.
type Persister interface {
	FlushDemand(ctx context.Context, batch []DemandSupplySample) error
	FlushSpeed(ctx context.Context, batch []SpeedObservation) error
	FlushTrips(ctx context.Context, batch []EarningsRecord) error
	LoadAll(ctx context.Context) ([]DemandSupplySample, []SpeedObservation, []EarningsRecord, error)
}

// LiveMirror publishes the most recent per-cell sample for out-of-process
// consumers. Failures are logged, never propagated to the recorder.
type LiveMirror interface {
	Publish(ctx context.Context, sample DemandSupplySample) error
}

// Service validates and ingests observations. Ingestion runs off the
// advisory request path; advisory reads only touch the store snapshot.
type Service struct {
	store      *Store
	classifier *calendar.Classifier
	speed      SpeedSink
	persister  Persister
	live       LiveMirror
	cfg        config.EngineConfig

	// settingsMu serializes writers; readers go through the atomic
	// snapshot and never block on a concurrent update.
	settingsMu sync.Mutex
	settings   atomic.Pointer[Settings]
}

func NewService(store *Store, classifier *calendar.Classifier, speed SpeedSink, persister Persister, live LiveMirror, cfg config.EngineConfig) *Service {
	s := &Service{
		store:      store,
		classifier: classifier,
		speed:      speed,
		persister:  persister,
		live:       live,
		cfg:        cfg,
	}
	s.settings.Store(&Settings{
		CellEdgeMetres:     cfg.CellEdgeMetres,
		BucketWidthMinutes: cfg.BucketWidthMinutes,
		OperatingRadiusKm:  cfg.OperatingRadiusKm,
	})
	return s
}

// Settings returns the derivation parameters applied to new observations.
func (s *Service) Settings() Settings {
	return *s.settings.Load()
}

// SetBucketWidth changes the bucket width for subsequent derivations.
// Already-bucketed history is not rewritten.
func (s *Service) SetBucketWidth(minutes int) error {
	if minutes != 15 && minutes != 30 {
		return ErrBadSetting
	}
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	cur := *s.settings.Load()
	cur.BucketWidthMinutes = minutes
	s.settings.Store(&cur)
	return nil
}

// SetOperatingRadius changes the advisory search radius.
func (s *Service) SetOperatingRadius(km float64) error {
	if km <= 0 {
		return ErrBadSetting
	}
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	cur := *s.settings.Load()
	cur.OperatingRadiusKm = km
	s.settings.Store(&cur)
	return nil
}

type DemandCommand struct {
	Position   types.Point
	Passengers int
	Drivers    int
	Source     Source
	Timestamp  time.Time
}

// RecordDemandSupply validates and ingests a demand/supply observation.
func (s *Service) RecordDemandSupply(ctx context.Context, cmd DemandCommand) (DemandSupplySample, error) {
	if !cmd.Position.Valid() || cmd.Timestamp.IsZero() || cmd.Passengers < 0 || cmd.Drivers < 0 {
		return DemandSupplySample{}, ErrBadObservation
	}
	if cmd.Source == "" {
		cmd.Source = SourceAutomatic
	}
	if !cmd.Source.Known() {
		return DemandSupplySample{}, ErrBadObservation
	}

	set := s.Settings()
	cell := grid.CellOf(cmd.Position, set.CellEdgeMetres)
	sample := DemandSupplySample{
		Timestamp:  cmd.Timestamp,
		Position:   cmd.Position,
		Cell:       cell,
		CellKey:    cell.Key(),
		Bucket:     grid.BucketOf(cmd.Timestamp.Hour(), cmd.Timestamp.Minute(), set.BucketWidthMinutes),
		Day:        cmd.Timestamp.Weekday(),
		DayType:    s.classifier.Classify(cmd.Timestamp),
		Passengers: cmd.Passengers,
		Drivers:    cmd.Drivers,
		Source:     cmd.Source,
	}
	s.store.AddDemand(sample, s.persister != nil)

	if s.live != nil {
		if err := s.live.Publish(ctx, sample); err != nil {
			log.Printf("[samples] live mirror publish failed: %v", err)
		}
	}
	return sample, nil
}

type SpeedCommand struct {
	Start     types.Point
	End       types.Point
	Timestamp time.Time
	DurationS float64
}

// RecordSpeedObservation validates a travel-speed measurement. Malformed
// input is an error; an implausible but well-formed measurement is
// silently dropped (accepted=false) and never creates a record.
func (s *Service) RecordSpeedObservation(ctx context.Context, cmd SpeedCommand) (bool, error) {
	if !cmd.Start.Valid() || !cmd.End.Valid() || cmd.Timestamp.IsZero() {
		return false, ErrBadObservation
	}
	if cmd.DurationS < s.cfg.MinObsDurationSec || cmd.DurationS > s.cfg.MaxObsDurationSec {
		return false, nil
	}

	distanceM := grid.HaversineKm(cmd.Start, cmd.End) * 1000.0
	speedKmh := distanceM / 1000.0 / (cmd.DurationS / 3600.0)
	if speedKmh < s.cfg.MinSpeedKmh || speedKmh > s.cfg.MaxSpeedKmh {
		return false, nil
	}

	set := s.Settings()
	obs := SpeedObservation{
		Timestamp:  cmd.Timestamp,
		Start:      cmd.Start,
		End:        cmd.End,
		SegmentKey: grid.SegmentOf(cmd.Start, cmd.End, set.CellEdgeMetres).Key(),
		DistanceM:  distanceM,
		DurationS:  cmd.DurationS,
		SpeedKmh:   speedKmh,
		Bucket:     grid.BucketOf(cmd.Timestamp.Hour(), cmd.Timestamp.Minute(), set.BucketWidthMinutes),
		Day:        cmd.Timestamp.Weekday(),
	}
	s.store.AddSpeed(obs, s.persister != nil)
	if s.speed != nil {
		s.speed.Observe(obs)
	}
	return true, nil
}

type TripCommand struct {
	StartTime time.Time
	EndTime   time.Time
	Amount    float64
	Start     types.Point
	End       types.Point
}

// RecordTrip ingests a completed trip.
func (s *Service) RecordTrip(ctx context.Context, cmd TripCommand) (EarningsRecord, error) {
	if !cmd.Start.Valid() || !cmd.End.Valid() || cmd.StartTime.IsZero() ||
		!cmd.EndTime.After(cmd.StartTime) || cmd.Amount < 0 {
		return EarningsRecord{}, ErrBadObservation
	}

	set := s.Settings()
	cell := grid.CellOf(cmd.Start, set.CellEdgeMetres)
	duration := cmd.EndTime.Sub(cmd.StartTime)
	rec := EarningsRecord{
		StartTime:  cmd.StartTime,
		EndTime:    cmd.EndTime,
		Duration:   duration,
		Amount:     cmd.Amount,
		Start:      cmd.Start,
		End:        cmd.End,
		Cell:       cell,
		CellKey:    cell.Key(),
		Day:        cmd.StartTime.Weekday(),
		Hour:       cmd.StartTime.Hour(),
		Bucket:     grid.BucketOf(cmd.StartTime.Hour(), cmd.StartTime.Minute(), set.BucketWidthMinutes),
		DayType:    s.classifier.Classify(cmd.StartTime),
		HourlyRate: cmd.Amount / duration.Hours(),
	}
	s.store.AddTrip(rec, s.persister != nil)
	return rec, nil
}

// RunFlusher drains pending samples to the persister, on a timer and
// whenever the batch threshold fires. A failed flush re-queues the
// batch and retries next cycle; the in-memory store is never touched.
func (s *Service) RunFlusher(ctx context.Context) {
	if s.persister == nil {
		return
	}
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushOnce(context.Background())
			return
		case <-ticker.C:
			s.flushOnce(ctx)
		case <-s.store.PendingNotify():
			s.flushOnce(ctx)
		}
	}
}

func (s *Service) flushOnce(ctx context.Context) {
	demand, speed, trips := s.store.DrainPending()
	if len(demand) == 0 && len(speed) == 0 && len(trips) == 0 {
		return
	}

	var failed bool
	if len(demand) > 0 {
		if err := s.persister.FlushDemand(ctx, demand); err != nil {
			log.Printf("[samples] demand flush failed (%d queued): %v", len(demand), err)
			failed = true
		} else {
			demand = nil
		}
	}
	if len(speed) > 0 {
		if err := s.persister.FlushSpeed(ctx, speed); err != nil {
			log.Printf("[samples] speed flush failed (%d queued): %v", len(speed), err)
			failed = true
		} else {
			speed = nil
		}
	}
	if len(trips) > 0 {
		if err := s.persister.FlushTrips(ctx, trips); err != nil {
			log.Printf("[samples] trips flush failed (%d queued): %v", len(trips), err)
			failed = true
		} else {
			trips = nil
		}
	}
	if failed {
		s.store.Requeue(demand, speed, trips)
	}
}

// ReplayPersisted loads all persisted observations and replays them
// through the in-memory store and the speed estimator in timestamp
// order, rebuilding filter state deterministically. Replayed rows are
// not queued for persistence again.
func (s *Service) ReplayPersisted(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	demand, speed, trips, err := s.persister.LoadAll(ctx)
	if err != nil {
		return err
	}

	for _, sample := range demand {
		s.store.AddDemand(sample, false)
	}
	for _, rec := range trips {
		s.store.AddTrip(rec, false)
	}
	// Speed observations drive filter state; order matters.
	sortSpeedByTime(speed)
	for _, obs := range speed {
		s.store.AddSpeed(obs, false)
		if s.speed != nil {
			s.speed.Observe(obs)
		}
	}
	log.Printf("[samples] replayed %d demand, %d speed, %d trip records", len(demand), len(speed), len(trips))
	return nil
}

func sortSpeedByTime(obs []SpeedObservation) {
	// Insertion sort; persisted batches are mostly ordered already.
	for i := 1; i < len(obs); i++ {
		key := obs[i]
		j := i - 1
		for j >= 0 && obs[j].Timestamp.After(key.Timestamp) {
			obs[j+1] = obs[j]
			j--
		}
		obs[j+1] = key
	}
}
