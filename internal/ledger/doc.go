// Package ledger tracks every in-flight order and drives the exchange
// through a fixed set of worker goroutines.
//
// The Book maps local references and trade ids to entries; the Pool owns
// one worker per queue (create, close, cancel, monitor, account). Workers
// are the only writers of remote state on their entries, so no two
// goroutines ever race on the same field.
//
// A close is fanned out across the position's remote deals and the entry
// survives until the last deal confirms closed.
package ledger
