// Package dairhome implements the aggregation backend of a home
// energy dashboard.
//
// # Architecture
//
// The service is structured into several key packages:
//   - api: client for the vendor telemetry export endpoint
//   - normalize: parse-or-default coercion of raw rows into records
//   - aggregate: minute bucketing, home combination, consumption
//     attribution, and grid-draw interval extraction
//   - service: per-day aggregation passes, day cache, refresh guards
//   - poller: periodic refresh of the today view
//   - server: HTTP JSON transport for the web dashboard
//
// Key behaviors:
//
//   - Two inverter streams (ground floor and first floor) are aligned
//     on one-minute buckets and summed into a single home series.
//   - Battery state of charge comes from a single designated inverter;
//     the vendor duplicates it per device.
//   - Grid-draw intervals are extracted from the home series in one
//     linear scan with an end-of-series flush.
//   - Every view is recomputed from scratch each pass. Nothing is
//     persisted; a failed pass leaves the previous view in place.
package dairhome
