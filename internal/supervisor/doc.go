// Package supervisor keeps the two broker connections alive: the WebSocket
// quote stream and the REST session behind it.
//
// Quotes are pumped into a single tick queue. When the stream dies, the
// supervisor enqueues one sentinel tick and raises the lost flag; consumers
// learn about the loss in order, after every quote that preceded it.
package supervisor
