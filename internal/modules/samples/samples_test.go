package samples

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"roam/internal/calendar"
	"roam/internal/config"
	"roam/internal/types"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		CellEdgeMetres:     100,
		BucketWidthMinutes: 30,
		OperatingRadiusKm:  5,
		MinObsDurationSec:  8,
		MaxObsDurationSec:  15,
		MinSpeedKmh:        0.5,
		MaxSpeedKmh:        200,
		FlushBatch:         50,
		FlushInterval:      time.Minute,
	}
}

type speedRecorder struct {
	mu  sync.Mutex
	obs []SpeedObservation
}

func (r *speedRecorder) Observe(o SpeedObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, o)
}

func (r *speedRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.obs)
}

type fakePersister struct {
	mu       sync.Mutex
	failures int
	demand   []DemandSupplySample
	speed    []SpeedObservation
	trips    []EarningsRecord
	loaded   struct {
		demand []DemandSupplySample
		speed  []SpeedObservation
		trips  []EarningsRecord
	}
}

func (p *fakePersister) FlushDemand(_ context.Context, batch []DemandSupplySample) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("simulated flush failure")
	}
	p.demand = append(p.demand, batch...)
	return nil
}

func (p *fakePersister) FlushSpeed(_ context.Context, batch []SpeedObservation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speed = append(p.speed, batch...)
	return nil
}

func (p *fakePersister) FlushTrips(_ context.Context, batch []EarningsRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trips = append(p.trips, batch...)
	return nil
}

func (p *fakePersister) LoadAll(_ context.Context) ([]DemandSupplySample, []SpeedObservation, []EarningsRecord, error) {
	return p.loaded.demand, p.loaded.speed, p.loaded.trips, nil
}

func newTestService(t *testing.T, sink SpeedSink, persister Persister) *Service {
	t.Helper()
	store := NewStore(50)
	return NewService(store, calendar.NewClassifier(calendar.DefaultHolidays()), sink, persister, nil, testEngineConfig())
}

func mondayAt(hour, minute int) time.Time {
	// 2026-03-09 is a plain Monday.
	return time.Date(2026, time.March, 9, hour, minute, 0, 0, time.UTC)
}

func TestRecordDemandSupplyDerivesKeys(t *testing.T) {
	svc := newTestService(t, nil, nil)

	sample, err := svc.RecordDemandSupply(context.Background(), DemandCommand{
		Position:   types.Point{Lat: 53.778, Lng: 20.480},
		Passengers: 4,
		Drivers:    2,
		Source:     SourceManual,
		Timestamp:  mondayAt(8, 45),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if sample.Day != time.Monday {
		t.Errorf("day = %s, want Monday", sample.Day)
	}
	if sample.Bucket != 17 { // 8:45 with 30-minute buckets
		t.Errorf("bucket = %d, want 17", sample.Bucket)
	}
	if sample.DayType != calendar.Workday {
		t.Errorf("day type = %s, want workday", sample.DayType)
	}
	if sample.CellKey == "" {
		t.Error("cell key not derived")
	}

	latest, ok := svc.store.Latest(sample.CellKey)
	if !ok {
		t.Fatal("latest sample missing from store")
	}
	if latest.Passengers != 4 || latest.Drivers != 2 {
		t.Errorf("latest = %d/%d, want 4/2", latest.Passengers, latest.Drivers)
	}
}

func TestRecordDemandSupplyRejectsMalformed(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  DemandCommand
	}{
		{"out of range latitude", DemandCommand{
			Position: types.Point{Lat: 95, Lng: 20}, Timestamp: mondayAt(9, 0),
		}},
		{"zero timestamp", DemandCommand{
			Position: types.Point{Lat: 53.7, Lng: 20.4},
		}},
		{"negative passengers", DemandCommand{
			Position: types.Point{Lat: 53.7, Lng: 20.4}, Passengers: -1, Timestamp: mondayAt(9, 0),
		}},
		{"negative drivers", DemandCommand{
			Position: types.Point{Lat: 53.7, Lng: 20.4}, Drivers: -2, Timestamp: mondayAt(9, 0),
		}},
		{"unknown source tag", DemandCommand{
			Position: types.Point{Lat: 53.7, Lng: 20.4}, Source: "scraped", Timestamp: mondayAt(9, 0),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RecordDemandSupply(ctx, tc.cmd); err != ErrBadObservation {
				t.Errorf("expected ErrBadObservation, got %v", err)
			}
		})
	}
}

func TestRecordSpeedObservationAccepted(t *testing.T) {
	sink := &speedRecorder{}
	svc := newTestService(t, sink, nil)

	// ~111m north over 10s ≈ 40 km/h, inside both plausibility windows.
	accepted, err := svc.RecordSpeedObservation(context.Background(), SpeedCommand{
		Start:     types.Point{Lat: 53.7780, Lng: 20.4800},
		End:       types.Point{Lat: 53.7790, Lng: 20.4800},
		Timestamp: mondayAt(8, 10),
		DurationS: 10,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !accepted {
		t.Fatal("expected observation to be accepted")
	}
	if sink.count() != 1 {
		t.Fatalf("estimator received %d observations, want 1", sink.count())
	}
	if got := len(svc.store.SpeedSnapshot()); got != 1 {
		t.Fatalf("store has %d observations, want 1", got)
	}

	obs := sink.obs[0]
	if obs.SpeedKmh < 35 || obs.SpeedKmh > 45 {
		t.Errorf("speed = %f km/h, want ~40", obs.SpeedKmh)
	}
	if obs.SegmentKey == "" {
		t.Error("segment key not derived")
	}
}

func TestRecordSpeedObservationDropsImplausible(t *testing.T) {
	sink := &speedRecorder{}
	svc := newTestService(t, sink, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  SpeedCommand
	}{
		{"duration too short", SpeedCommand{
			Start: types.Point{Lat: 53.778, Lng: 20.480}, End: types.Point{Lat: 53.779, Lng: 20.480},
			Timestamp: mondayAt(8, 0), DurationS: 3,
		}},
		{"duration too long", SpeedCommand{
			Start: types.Point{Lat: 53.778, Lng: 20.480}, End: types.Point{Lat: 53.779, Lng: 20.480},
			Timestamp: mondayAt(8, 0), DurationS: 60,
		}},
		{"speed too high", SpeedCommand{
			// ~13km in 10 seconds.
			Start: types.Point{Lat: 53.778, Lng: 20.480}, End: types.Point{Lat: 53.9, Lng: 20.480},
			Timestamp: mondayAt(8, 0), DurationS: 10,
		}},
		{"speed too low", SpeedCommand{
			// Standing still for 10 seconds.
			Start: types.Point{Lat: 53.778, Lng: 20.480}, End: types.Point{Lat: 53.778, Lng: 20.480},
			Timestamp: mondayAt(8, 0), DurationS: 10,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			accepted, err := svc.RecordSpeedObservation(ctx, tc.cmd)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if accepted {
				t.Error("implausible observation was accepted")
			}
		})
	}

	if sink.count() != 0 {
		t.Errorf("estimator received %d observations, want 0", sink.count())
	}
	if got := len(svc.store.SpeedSnapshot()); got != 0 {
		t.Errorf("store has %d observations, want 0", got)
	}
}

func TestRecordTrip(t *testing.T) {
	svc := newTestService(t, nil, nil)

	start := mondayAt(8, 0)
	rec, err := svc.RecordTrip(context.Background(), TripCommand{
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Amount:    15,
		Start:     types.Point{Lat: 53.778, Lng: 20.480},
		End:       types.Point{Lat: 53.790, Lng: 20.500},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.HourlyRate != 30 {
		t.Errorf("hourly rate = %f, want 30", rec.HourlyRate)
	}
	if rec.Hour != 8 || rec.Day != time.Monday {
		t.Errorf("derived (day=%s, hour=%d), want (Monday, 8)", rec.Day, rec.Hour)
	}

	snap := svc.store.EarningsSnapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d samples, want 1", len(snap))
	}
	if snap[0].Rate != 30 || snap[0].Weekend {
		t.Errorf("snapshot row = %+v, want rate 30, weekday", snap[0])
	}
}

func TestRecordTripRejectsMalformed(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	start := mondayAt(8, 0)
	valid := types.Point{Lat: 53.778, Lng: 20.480}

	cases := []struct {
		name string
		cmd  TripCommand
	}{
		{"end before start", TripCommand{StartTime: start, EndTime: start.Add(-time.Minute), Amount: 10, Start: valid, End: valid}},
		{"negative amount", TripCommand{StartTime: start, EndTime: start.Add(time.Minute), Amount: -1, Start: valid, End: valid}},
		{"bad coordinates", TripCommand{StartTime: start, EndTime: start.Add(time.Minute), Amount: 10, Start: types.Point{Lat: 100}, End: valid}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RecordTrip(ctx, tc.cmd); err != ErrBadObservation {
				t.Errorf("expected ErrBadObservation, got %v", err)
			}
		})
	}
}

func TestSetBucketWidthAppliesToSubsequentOnly(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()
	pos := types.Point{Lat: 53.778, Lng: 20.480}

	before, err := svc.RecordDemandSupply(ctx, DemandCommand{Position: pos, Timestamp: mondayAt(8, 45)})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if before.Bucket != 17 {
		t.Fatalf("bucket = %d, want 17 (30-minute width)", before.Bucket)
	}

	if err := svc.SetBucketWidth(15); err != nil {
		t.Fatalf("set bucket width: %v", err)
	}
	after, err := svc.RecordDemandSupply(ctx, DemandCommand{Position: pos, Timestamp: mondayAt(8, 45)})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if after.Bucket != 35 {
		t.Errorf("bucket = %d, want 35 (15-minute width)", after.Bucket)
	}

	// The earlier sample keeps its original bucket.
	hist := svc.store.DemandHistory(before.CellKey, time.Monday, 17)
	if len(hist) != 1 {
		t.Errorf("expected original sample under old bucket, got %d", len(hist))
	}
}

func TestSetBucketWidthRejectsUnsupported(t *testing.T) {
	svc := newTestService(t, nil, nil)
	for _, w := range []int{0, 10, 20, 60} {
		if err := svc.SetBucketWidth(w); err != ErrBadSetting {
			t.Errorf("SetBucketWidth(%d): expected ErrBadSetting, got %v", w, err)
		}
	}
}

func TestSetOperatingRadius(t *testing.T) {
	svc := newTestService(t, nil, nil)
	if err := svc.SetOperatingRadius(8); err != nil {
		t.Fatalf("set radius: %v", err)
	}
	if got := svc.Settings().OperatingRadiusKm; got != 8 {
		t.Errorf("radius = %f, want 8", got)
	}
	if err := svc.SetOperatingRadius(0); err != ErrBadSetting {
		t.Errorf("expected ErrBadSetting for zero radius, got %v", err)
	}
}

func TestEmptySourceDefaultsToAutomatic(t *testing.T) {
	svc := newTestService(t, nil, nil)
	sample, err := svc.RecordDemandSupply(context.Background(), DemandCommand{
		Position:  types.Point{Lat: 53.778, Lng: 20.480},
		Timestamp: mondayAt(9, 0),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if sample.Source != SourceAutomatic {
		t.Errorf("source = %q, want automatic", sample.Source)
	}
}

func TestConcurrentSettingsUpdatesBothSurvive(t *testing.T) {
	svc := newTestService(t, nil, nil)

	for i := 0; i < 200; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := svc.SetBucketWidth(15); err != nil {
				t.Errorf("set bucket width: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := svc.SetOperatingRadius(9); err != nil {
				t.Errorf("set radius: %v", err)
			}
		}()
		wg.Wait()

		set := svc.Settings()
		if set.BucketWidthMinutes != 15 || set.OperatingRadiusKm != 9 {
			t.Fatalf("iteration %d lost an update: %+v", i, set)
		}

		// Reset for the next round.
		if err := svc.SetBucketWidth(30); err != nil {
			t.Fatalf("reset bucket width: %v", err)
		}
		if err := svc.SetOperatingRadius(5); err != nil {
			t.Fatalf("reset radius: %v", err)
		}
	}
}

func TestConcurrentIngestion(t *testing.T) {
	svc := newTestService(t, &speedRecorder{}, nil)
	ctx := context.Background()

	const workers = 8
	const perWorker = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Spread across distinct cells so shards get exercised.
				pos := types.Point{Lat: 53.7 + float64(w)*0.01, Lng: 20.4 + float64(i)*0.001}
				_, err := svc.RecordDemandSupply(ctx, DemandCommand{
					Position:   pos,
					Passengers: i,
					Timestamp:  mondayAt(8, 0).Add(time.Duration(i) * time.Second),
				})
				if err != nil {
					t.Errorf("record: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	got := svc.store.QueryDemand(func(DemandSupplySample) bool { return true })
	if len(got) != workers*perWorker {
		t.Errorf("store has %d samples, want %d", len(got), workers*perWorker)
	}
}

func TestFlushFailureRequeues(t *testing.T) {
	persister := &fakePersister{failures: 1}
	svc := newTestService(t, nil, persister)
	ctx := context.Background()

	if _, err := svc.RecordDemandSupply(ctx, DemandCommand{
		Position:  types.Point{Lat: 53.778, Lng: 20.480},
		Timestamp: mondayAt(9, 0),
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	// First flush fails; the sample must survive for the retry.
	svc.flushOnce(ctx)
	if len(persister.demand) != 0 {
		t.Fatalf("failed flush persisted %d samples", len(persister.demand))
	}

	svc.flushOnce(ctx)
	if len(persister.demand) != 1 {
		t.Fatalf("retry persisted %d samples, want 1", len(persister.demand))
	}

	// In-memory store was never affected by the failure.
	got := svc.store.QueryDemand(func(DemandSupplySample) bool { return true })
	if len(got) != 1 {
		t.Errorf("store has %d samples, want 1", len(got))
	}
}

func TestReplayPersistedFeedsEstimatorInOrder(t *testing.T) {
	sink := &speedRecorder{}
	persister := &fakePersister{}

	base := mondayAt(7, 0)
	// Deliberately out of order; replay must sort by timestamp.
	persister.loaded.speed = []SpeedObservation{
		{Timestamp: base.Add(2 * time.Minute), SegmentKey: "a>b", SpeedKmh: 50, Day: time.Monday, Bucket: 14},
		{Timestamp: base, SegmentKey: "a>b", SpeedKmh: 30, Day: time.Monday, Bucket: 14},
		{Timestamp: base.Add(time.Minute), SegmentKey: "a>b", SpeedKmh: 40, Day: time.Monday, Bucket: 14},
	}

	svc := newTestService(t, sink, persister)
	if err := svc.ReplayPersisted(context.Background()); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if sink.count() != 3 {
		t.Fatalf("estimator received %d observations, want 3", sink.count())
	}
	for i, want := range []float64{30, 40, 50} {
		if sink.obs[i].SpeedKmh != want {
			t.Errorf("observation %d speed = %f, want %f", i, sink.obs[i].SpeedKmh, want)
		}
	}

	// Replayed rows are not queued for persistence again.
	d, s, tr := svc.store.DrainPending()
	if len(d)+len(s)+len(tr) != 0 {
		t.Errorf("replay queued %d records for persistence", len(d)+len(s)+len(tr))
	}
}
