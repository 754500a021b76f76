// README: In-memory sharded sample store; append-only with snapshot reads.
package samples

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"roam/internal/calendar"
	"roam/internal/grid"
)

const shardCount = 16

// Store keeps all accepted observations in memory, sharded by cell so
// ingestion for different areas never contends. Reads return copies;
// scoring may observe a slightly stale snapshot, which is acceptable
// for advisory output.
type Store struct {
	shards [shardCount]*cellShard

	// Earnings and speed observations are grouped by time keys rather
	// than cells, so they live outside the cell shards.
	earningsMu sync.RWMutex
	earnings   []EarningsRecord
	byCellSlot map[string][]float64 // cell|dayType|bucket → hourly rates

	speedMu sync.RWMutex
	speed   []SpeedObservation

	pendingMu      sync.Mutex
	pendingDemand  []DemandSupplySample
	pendingSpeed   []SpeedObservation
	pendingTrips   []EarningsRecord
	pendingNotify  chan struct{}
	pendingBatch   int
}

type cellShard struct {
	mu       sync.RWMutex
	byCell   map[string][]DemandSupplySample
	bySlot   map[string][]DemandSupplySample // cell|day|bucket
	latest   map[string]DemandSupplySample
	cells    map[string]grid.Cell
}

// NewStore creates an empty store. flushBatch controls when the
// pending-persistence notify channel fires.
func NewStore(flushBatch int) *Store {
	s := &Store{
		byCellSlot:    make(map[string][]float64),
		pendingNotify: make(chan struct{}, 1),
		pendingBatch:  flushBatch,
	}
	for i := range s.shards {
		s.shards[i] = &cellShard{
			byCell: make(map[string][]DemandSupplySample),
			bySlot: make(map[string][]DemandSupplySample),
			latest: make(map[string]DemandSupplySample),
			cells:  make(map[string]grid.Cell),
		}
	}
	return s
}

func (s *Store) shardFor(cellKey string) *cellShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(cellKey))
	return s.shards[h.Sum32()%shardCount]
}

func slotKey(cellKey string, day time.Weekday, bucket int) string {
	return fmt.Sprintf("%s|%d|%d", cellKey, day, bucket)
}

func rateSlotKey(cellKey string, dt calendar.DayType, bucket int) string {
	return fmt.Sprintf("%s|%s|%d", cellKey, dt, bucket)
}

// AddDemand appends a demand/supply sample. persist controls whether
// the sample is queued for the background flusher (replayed history is
// not re-persisted).
func (s *Store) AddDemand(sample DemandSupplySample, persist bool) {
	sh := s.shardFor(sample.CellKey)
	sh.mu.Lock()
	sh.byCell[sample.CellKey] = append(sh.byCell[sample.CellKey], sample)
	sk := slotKey(sample.CellKey, sample.Day, sample.Bucket)
	sh.bySlot[sk] = append(sh.bySlot[sk], sample)
	if cur, ok := sh.latest[sample.CellKey]; !ok || sample.Timestamp.After(cur.Timestamp) {
		sh.latest[sample.CellKey] = sample
	}
	sh.cells[sample.CellKey] = sample.Cell
	sh.mu.Unlock()

	if persist {
		s.queuePending(func() { s.pendingDemand = append(s.pendingDemand, sample) })
	}
}

// AddSpeed appends an accepted speed observation.
func (s *Store) AddSpeed(obs SpeedObservation, persist bool) {
	s.speedMu.Lock()
	s.speed = append(s.speed, obs)
	s.speedMu.Unlock()

	if persist {
		s.queuePending(func() { s.pendingSpeed = append(s.pendingSpeed, obs) })
	}
}

// AddTrip appends a completed-trip earnings record.
func (s *Store) AddTrip(rec EarningsRecord, persist bool) {
	s.earningsMu.Lock()
	s.earnings = append(s.earnings, rec)
	rk := rateSlotKey(rec.CellKey, rec.DayType, rec.Bucket)
	s.byCellSlot[rk] = append(s.byCellSlot[rk], rec.HourlyRate)
	s.earningsMu.Unlock()

	// Trips also mark the cell as known for candidate generation.
	sh := s.shardFor(rec.CellKey)
	sh.mu.Lock()
	if _, ok := sh.cells[rec.CellKey]; !ok {
		sh.cells[rec.CellKey] = rec.Cell
	}
	sh.mu.Unlock()

	if persist {
		s.queuePending(func() { s.pendingTrips = append(s.pendingTrips, rec) })
	}
}

// Latest returns the most recent demand/supply sample for a cell.
func (s *Store) Latest(cellKey string) (DemandSupplySample, bool) {
	sh := s.shardFor(cellKey)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sample, ok := sh.latest[cellKey]
	return sample, ok
}

// DemandHistory returns the samples recorded for (cell, day, bucket).
func (s *Store) DemandHistory(cellKey string, day time.Weekday, bucket int) []DemandSupplySample {
	sh := s.shardFor(cellKey)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	src := sh.bySlot[slotKey(cellKey, day, bucket)]
	out := make([]DemandSupplySample, len(src))
	copy(out, src)
	return out
}

// DemandRecent returns the cell's samples with timestamp at or after
// the cutoff, regardless of bucket.
func (s *Store) DemandRecent(cellKey string, cutoff time.Time) []DemandSupplySample {
	sh := s.shardFor(cellKey)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	var out []DemandSupplySample
	for _, sample := range sh.byCell[cellKey] {
		if !sample.Timestamp.Before(cutoff) {
			out = append(out, sample)
		}
	}
	return out
}

// QueryDemand returns all demand samples matching the predicate. The
// predicate must not retain or mutate samples.
func (s *Store) QueryDemand(pred func(DemandSupplySample) bool) []DemandSupplySample {
	var out []DemandSupplySample
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, list := range sh.byCell {
			for _, sample := range list {
				if pred(sample) {
					out = append(out, sample)
				}
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// KnownCells returns every cell with demand or trip history.
func (s *Store) KnownCells() map[string]grid.Cell {
	out := make(map[string]grid.Cell)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, c := range sh.cells {
			out[k] = c
		}
		sh.mu.RUnlock()
	}
	return out
}

// EarningsSnapshot returns the predictor's immutable view of all trips.
func (s *Store) EarningsSnapshot() []HourlySample {
	s.earningsMu.RLock()
	defer s.earningsMu.RUnlock()
	out := make([]HourlySample, 0, len(s.earnings))
	for _, rec := range s.earnings {
		out = append(out, HourlySample{
			Day:     rec.Day,
			Hour:    rec.Hour,
			Rate:    rec.HourlyRate,
			Weekend: calendar.IsWeekendClass(rec.Day),
		})
	}
	return out
}

// CellHourlyRate returns the mean historical hourly rate for trips that
// started in (cell, dayType, bucket).
func (s *Store) CellHourlyRate(cellKey string, dt calendar.DayType, bucket int) (float64, bool) {
	s.earningsMu.RLock()
	defer s.earningsMu.RUnlock()
	rates := s.byCellSlot[rateSlotKey(cellKey, dt, bucket)]
	if len(rates) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, r := range rates {
		sum += r
	}
	return sum / float64(len(rates)), true
}

// SpeedSnapshot returns a copy of all accepted speed observations.
func (s *Store) SpeedSnapshot() []SpeedObservation {
	s.speedMu.RLock()
	defer s.speedMu.RUnlock()
	out := make([]SpeedObservation, len(s.speed))
	copy(out, s.speed)
	return out
}

// queuePending appends to a pending-persistence queue and signals the
// flusher when the batch threshold is reached.
func (s *Store) queuePending(appendFn func()) {
	s.pendingMu.Lock()
	appendFn()
	total := len(s.pendingDemand) + len(s.pendingSpeed) + len(s.pendingTrips)
	s.pendingMu.Unlock()

	if total >= s.pendingBatch {
		select {
		case s.pendingNotify <- struct{}{}:
		default:
		}
	}
}

// PendingNotify fires when enough samples have accumulated for a flush.
func (s *Store) PendingNotify() <-chan struct{} {
	return s.pendingNotify
}

// DrainPending removes and returns everything queued for persistence.
// If the flush fails the caller must Requeue the batches; samples
// already accepted in memory are never lost to a persistence error.
func (s *Store) DrainPending() ([]DemandSupplySample, []SpeedObservation, []EarningsRecord) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	d, sp, tr := s.pendingDemand, s.pendingSpeed, s.pendingTrips
	s.pendingDemand, s.pendingSpeed, s.pendingTrips = nil, nil, nil
	return d, sp, tr
}

// Requeue puts failed batches back at the head of the pending queues
// so the next flush cycle retries them in order.
func (s *Store) Requeue(d []DemandSupplySample, sp []SpeedObservation, tr []EarningsRecord) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pendingDemand = append(d, s.pendingDemand...)
	s.pendingSpeed = append(sp, s.pendingSpeed...)
	s.pendingTrips = append(tr, s.pendingTrips...)
}
