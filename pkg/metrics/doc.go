// Package metrics exposes controller metrics in the Prometheus text format.
//
// # Label Conventions
//
//   - kind: lowercase app kind (servemux, gorilla, gin)
//   - result: "ok" or "error"
//   - method: uppercase HTTP method
//   - route: the control route pattern, never the raw request path
//   - status: numeric HTTP status code
package metrics
