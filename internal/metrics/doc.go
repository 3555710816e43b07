// Package metrics exposes firmware loading counters through Prometheus, over
// HTTP or as a node exporter textfile.
package metrics
