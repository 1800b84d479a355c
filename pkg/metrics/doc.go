// Package metrics defines the Prometheus metrics of azauth, covering token
// requests, individual auth flow attempts and the cross-process lock. They
// live in a private registry and are dumped to a node-exporter textfile.
package metrics
