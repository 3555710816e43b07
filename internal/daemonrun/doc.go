// Package daemonrun wires configuration, logging, the instance lock, metrics
// exposition and the manager into one daemon process run.
package daemonrun
