// README: Pure spatial/temporal quantization: grid cells, time buckets, segments.
package grid

import (
	"fmt"
	"math"

	"roam/internal/types"
)

const earthRadiusKm = 6371.0

// metresPerDegree is the approximate length of one degree of latitude.
// Cells are squares in degree space, so their east-west edge shrinks
// towards the poles; at city scale the distortion is irrelevant.
const metresPerDegree = 111_000.0

// Cell is a fixed-edge quantization bucket over latitude/longitude.
// Two observations share a cell iff their quantized indices match.
type Cell struct {
	LatIdx int64
	LngIdx int64
}

// Key returns the stable map/storage key for the cell.
func (c Cell) Key() string {
	return fmt.Sprintf("%d:%d", c.LatIdx, c.LngIdx)
}

// CellOf quantizes a point to the cell grid with the given edge length.
func CellOf(p types.Point, edgeMetres float64) Cell {
	size := edgeMetres / metresPerDegree
	return Cell{
		LatIdx: int64(math.Floor(p.Lat / size)),
		LngIdx: int64(math.Floor(p.Lng / size)),
	}
}

// Center returns the midpoint of the cell, used as its entry point for
// ETA computation.
func (c Cell) Center(edgeMetres float64) types.Point {
	size := edgeMetres / metresPerDegree
	return types.Point{
		Lat: (float64(c.LatIdx) + 0.5) * size,
		Lng: (float64(c.LngIdx) + 0.5) * size,
	}
}

// Segment identifies a directed road segment by its quantized endpoints.
type Segment struct {
	From Cell
	To   Cell
}

func (s Segment) Key() string {
	return s.From.Key() + ">" + s.To.Key()
}

// SegmentOf derives the segment identity for a start/end point pair.
func SegmentOf(start, end types.Point, edgeMetres float64) Segment {
	return Segment{From: CellOf(start, edgeMetres), To: CellOf(end, edgeMetres)}
}

// BucketsPerDay returns the number of time buckets for the given width.
// Width must divide 24h evenly (15 or 30 in practice).
func BucketsPerDay(widthMinutes int) int {
	return (24 * 60) / widthMinutes
}

// BucketOf maps a time of day to its bucket index in [0, BucketsPerDay).
func BucketOf(hour, minute, widthMinutes int) int {
	return (hour*60 + minute) / widthMinutes
}

// BucketInterval maps a bucket index back to its half-open [start, end)
// interval, both expressed as minutes since midnight.
func BucketInterval(bucket, widthMinutes int) (startMin, endMin int) {
	return bucket * widthMinutes, (bucket + 1) * widthMinutes
}

// BucketHour returns the hour of day a bucket starts in.
func BucketHour(bucket, widthMinutes int) int {
	return (bucket * widthMinutes) / 60
}

// HaversineKm returns the great-circle distance in kilometres between
// two points specified in decimal degrees.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
