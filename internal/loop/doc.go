// Package loop implements the single-writer event loop that runs delayed store work.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Tasks are enqueued from any goroutine (timer callbacks, HTTP handlers, tests) and
// executed one at a time by the goroutine that called Run. This gives the store the
// cooperative, single-threaded scheduling model its handlers are written against:
// a task never runs concurrently with another task.
//
// Task Processing Flow:
//  1. A Scheduler fires a callback once its delay has elapsed
//  2. The callback enqueues a Task (FIFO)
//  3. Run dequeues tasks one at a time and executes them
//  4. A failing or panicking task is logged with its context; the loop continues
//
// Ordering:
// Tasks run in enqueue order. Delayed tasks are therefore ordered by timer expiry,
// not by the order in which they were scheduled. Every task is stamped with a
// monotonic sequence number from the loop's Clock; the store stamps commits and
// dispatches from the same clock so the whole history shares one logical timeline.
//
// There is no cancellation of scheduled work.
package loop
