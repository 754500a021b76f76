// README: Postgres persister: batched flushes and full startup load.
package samples

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roam/internal/calendar"
)

// PGPersister stores samples in Postgres. One table per sample kind;
// rows carry the derived keys so startup replay does not depend on the
// current derivation settings.
type PGPersister struct {
	db *pgxpool.Pool
}

func NewPGPersister(db *pgxpool.Pool) *PGPersister {
	return &PGPersister{db: db}
}

func (p *PGPersister) FlushDemand(ctx context.Context, batch []DemandSupplySample) error {
	b := &pgx.Batch{}
	for _, s := range batch {
		b.Queue(`INSERT INTO demand_samples
			(recorded_at, lat, lng, lat_idx, lng_idx, bucket, day, day_type, passengers, drivers, source)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			s.Timestamp, s.Position.Lat, s.Position.Lng,
			s.Cell.LatIdx, s.Cell.LngIdx, s.Bucket, int(s.Day), string(s.DayType),
			s.Passengers, s.Drivers, string(s.Source))
	}
	return p.sendBatch(ctx, b, "demand")
}

func (p *PGPersister) FlushSpeed(ctx context.Context, batch []SpeedObservation) error {
	b := &pgx.Batch{}
	for _, o := range batch {
		b.Queue(`INSERT INTO speed_observations
			(recorded_at, start_lat, start_lng, end_lat, end_lng, segment_key, distance_m, duration_s, speed_kmh, bucket, day)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			o.Timestamp, o.Start.Lat, o.Start.Lng, o.End.Lat, o.End.Lng,
			o.SegmentKey, o.DistanceM, o.DurationS, o.SpeedKmh, o.Bucket, int(o.Day))
	}
	return p.sendBatch(ctx, b, "speed")
}

func (p *PGPersister) FlushTrips(ctx context.Context, batch []EarningsRecord) error {
	b := &pgx.Batch{}
	for _, r := range batch {
		b.Queue(`INSERT INTO trip_records
			(started_at, ended_at, duration_s, amount, start_lat, start_lng, end_lat, end_lng,
			 lat_idx, lng_idx, day, hour, bucket, day_type, hourly_rate)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			r.StartTime, r.EndTime, r.Duration.Seconds(), r.Amount,
			r.Start.Lat, r.Start.Lng, r.End.Lat, r.End.Lng,
			r.Cell.LatIdx, r.Cell.LngIdx, int(r.Day), r.Hour, r.Bucket,
			string(r.DayType), r.HourlyRate)
	}
	return p.sendBatch(ctx, b, "trips")
}

func (p *PGPersister) sendBatch(ctx context.Context, b *pgx.Batch, kind string) error {
	br := p.db.SendBatch(ctx, b)
	defer br.Close()
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("flush %s batch row %d: %w", kind, i, err)
		}
	}
	return nil
}

// LoadAll reads every persisted record, each kind ordered by timestamp.
func (p *PGPersister) LoadAll(ctx context.Context) ([]DemandSupplySample, []SpeedObservation, []EarningsRecord, error) {
	demand, err := p.loadDemand(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	speed, err := p.loadSpeed(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	trips, err := p.loadTrips(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return demand, speed, trips, nil
}

func (p *PGPersister) loadDemand(ctx context.Context) ([]DemandSupplySample, error) {
	rows, err := p.db.Query(ctx, `SELECT recorded_at, lat, lng, lat_idx, lng_idx, bucket, day, day_type, passengers, drivers, source
		FROM demand_samples ORDER BY recorded_at`)
	if err != nil {
		return nil, fmt.Errorf("load demand samples: %w", err)
	}
	defer rows.Close()

	var out []DemandSupplySample
	for rows.Next() {
		var s DemandSupplySample
		var day int
		var dayType, source string
		if err := rows.Scan(&s.Timestamp, &s.Position.Lat, &s.Position.Lng,
			&s.Cell.LatIdx, &s.Cell.LngIdx, &s.Bucket, &day, &dayType,
			&s.Passengers, &s.Drivers, &source); err != nil {
			return nil, fmt.Errorf("scan demand sample: %w", err)
		}
		s.Day = time.Weekday(day)
		s.DayType = calendar.DayType(dayType)
		s.Source = Source(source)
		s.CellKey = s.Cell.Key()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PGPersister) loadSpeed(ctx context.Context) ([]SpeedObservation, error) {
	rows, err := p.db.Query(ctx, `SELECT recorded_at, start_lat, start_lng, end_lat, end_lng, segment_key, distance_m, duration_s, speed_kmh, bucket, day
		FROM speed_observations ORDER BY recorded_at`)
	if err != nil {
		return nil, fmt.Errorf("load speed observations: %w", err)
	}
	defer rows.Close()

	var out []SpeedObservation
	for rows.Next() {
		var o SpeedObservation
		var day int
		if err := rows.Scan(&o.Timestamp, &o.Start.Lat, &o.Start.Lng, &o.End.Lat, &o.End.Lng,
			&o.SegmentKey, &o.DistanceM, &o.DurationS, &o.SpeedKmh, &o.Bucket, &day); err != nil {
			return nil, fmt.Errorf("scan speed observation: %w", err)
		}
		o.Day = time.Weekday(day)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PGPersister) loadTrips(ctx context.Context) ([]EarningsRecord, error) {
	rows, err := p.db.Query(ctx, `SELECT started_at, ended_at, duration_s, amount, start_lat, start_lng, end_lat, end_lng,
		lat_idx, lng_idx, day, hour, bucket, day_type, hourly_rate
		FROM trip_records ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("load trip records: %w", err)
	}
	defer rows.Close()

	var out []EarningsRecord
	for rows.Next() {
		var r EarningsRecord
		var day int
		var durationS float64
		var dayType string
		if err := rows.Scan(&r.StartTime, &r.EndTime, &durationS, &r.Amount,
			&r.Start.Lat, &r.Start.Lng, &r.End.Lat, &r.End.Lng,
			&r.Cell.LatIdx, &r.Cell.LngIdx, &day, &r.Hour, &r.Bucket,
			&dayType, &r.HourlyRate); err != nil {
			return nil, fmt.Errorf("scan trip record: %w", err)
		}
		r.Duration = time.Duration(durationS * float64(time.Second))
		r.Day = time.Weekday(day)
		r.DayType = calendar.DayType(dayType)
		r.CellKey = r.Cell.Key()
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Persister = (*PGPersister)(nil)
