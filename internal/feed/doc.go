// Package feed delivers one instrument as a strictly monotonic bar stream.
//
// A small state machine sequences the phases: optional seed replay,
// historical backfill through a pager, then live quote polling. Status
// transitions (delayed, live, connection broken, disconnected) are emitted
// as events on a side channel; data and the end of data travel in-band on
// the bar channel, which closes exactly once at the terminal state.
package feed
