// Package reactor provides a single-threaded readiness loop over epoll and a
// pipe-backed Wakeup source that lets other goroutines post records into it.
package reactor
