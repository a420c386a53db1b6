/*
Package observability turns run lifecycle hooks into Prometheus metrics.

Register the hooks returned by Metrics.Hooks with the controller and expose the
registry on /metrics:

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	ctrl, _ := cadence.New(dir, hw, archive, locker, cadence.WithLifecycleHooks(m.Hooks()))
*/
package observability
