// Package uevent discovers firmware requests, either live from the netlink
// device event bus or by walking sysfs for requests that were already pending
// when the daemon started.
package uevent
