// Package preflight provides readiness checks for the kernel interfaces and
// filesystem paths firmwared depends on.
//
// The CLI "firmwared check" command runs them before the daemon is installed
// or after a configuration change. Missing firmware directories are reported
// as optional failures because the daemon skips them at startup.
package preflight
