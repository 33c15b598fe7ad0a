// Package journal persists delivered bars and order notifications to
// PostgreSQL for later analysis.
//
// Each writer consumes from a queue, accumulates rows into a batch, and
// flushes on size or interval. Inserts use ON CONFLICT DO NOTHING so a
// replayed backfill never duplicates rows.
package journal
