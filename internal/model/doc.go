// Package model defines the shared data types flowing between the feed,
// ledger, broker facade and journal.
//
// Conventions:
//   - Timestamps: time.Time in UTC
//   - Prices and sizes: float64 (the exchange quotes decimal levels)
//   - Local order references: opaque caller-assigned strings
package model
