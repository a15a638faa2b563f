// Package aggregate implements the time-series aggregation and derived
// metrics for the home energy view: minute bucketing of per-inverter
// records, combination of the two inverter streams into one home
// series, consumption attribution, and grid-draw interval extraction.
//
// Every transformation in this package is a pure function over an
// already-fetched snapshot. Nothing here blocks, allocates shared
// state, or mutates its input.
package aggregate

import (
	"time"

	"github.com/Mouaidnasab/dair-home/internal/models"
)

// MinuteBuckets collapses an arbitrarily ordered record stream for a
// single inverter into one record per clock minute. Within a minute the
// record with the strictly later sample time wins; for equal sample
// times the first one seen is retained. The winner's Timestamp is
// rewritten to the bucket key (seconds and below zeroed).
func MinuteBuckets(records []models.EnergyRecord) map[time.Time]models.EnergyRecord {
	type candidate struct {
		rec       models.EnergyRecord
		sampledAt time.Time
	}

	best := make(map[time.Time]candidate, len(records))
	for _, rec := range records {
		key := rec.Timestamp.Truncate(time.Minute)
		cur, ok := best[key]
		if !ok || rec.Timestamp.After(cur.sampledAt) {
			best[key] = candidate{rec: rec, sampledAt: rec.Timestamp}
		}
	}

	out := make(map[time.Time]models.EnergyRecord, len(best))
	for key, c := range best {
		c.rec.Timestamp = key
		out[key] = c.rec
	}
	return out
}
