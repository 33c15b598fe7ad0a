// Package stream implements the WebSocket quote transport.
//
// The protocol is command/response over a single socket: the client sends
// JSON commands carrying the REST session tokens, the server answers with
// enveloped messages keyed by destination. Quotes arrive unsolicited once a
// marketData.subscribe is acknowledged.
//
// The client is transport-only. Reconnection, keepalive scheduling and the
// end-of-stream sentinel are the supervisor's job.
package stream
