// Package firmware locates firmware images and feeds them to the kernel.
//
// A SearchPath resolves request names against an ordered list of directory
// handles, checking a per-kernel-release subdirectory before each base
// directory. The Loader performs the sysfs handshake on a request device:
// write "1" to loading, copy the image into data, then write "0" to commit or
// "-1" to abort.
//
// Errors carry a Kind. Callers treat KindNoSuchEntity as a device that went
// away and KindNotFound as a request nobody can serve; everything else is a
// real failure.
package firmware
