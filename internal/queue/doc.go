// Package queue provides the FIFO buffers connecting the bridge's workers.
//
// Design notes:
//   - Growable queues back the tick, history and order queues; they double
//     capacity at 70% fill so producers never block.
//   - Bounded queues back the notification boundary with an explicit
//     drop-oldest policy; TotalDropped in Stats exposes the loss count.
//   - ReceiveTimeout gives the engine-facing feed its bounded poll so the
//     caller can evaluate stop conditions between waits.
package queue
