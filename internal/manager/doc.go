// Package manager ties the firmware search path, the device event bus and
// the reactor together into the daemon's event loop.
//
// New acquires every resource up front; Run serves requests that were
// pending at startup and then every firmware add or move event until a
// termination signal arrives. All dispatch happens on the goroutine calling
// Run. Helper goroutines only post wake-up records: signal delivery, context
// cancellation, directory changes, and the rescan schedule.
//
// In tentative mode a request whose firmware cannot be found is left pending
// rather than cancelled. It is served when a later event or rescan finds the
// file, or it times out in the kernel.
package manager
