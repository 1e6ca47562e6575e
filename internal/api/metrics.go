package api

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/AaronLay10/decisiongraph/internal/version"
)

// metricsHandler returns Prometheus-compatible metrics in text format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	labels := fmt.Sprintf(`instance="%s",version="%s",session="%s"`, hostname, version.Version, s.runner.Session())

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeHeader := func(name, mtype, help string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
	}
	writeMetric := func(name, mtype, help string, value any) {
		writeHeader(name, mtype, help)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}
	gauge := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}

	writeMetric("agentsim_uptime_seconds", "gauge",
		"Number of seconds since the simulator started", time.Since(s.started).Seconds())
	writeMetric("agentsim_ticks_total", "counter",
		"Ticks executed since start or the last reset", s.runner.TickCount())
	writeMetric("agentsim_agents", "gauge",
		"Number of registered agents", len(s.runner.Agents()))
	writeMetric("agentsim_agents_running", "gauge",
		"Number of agents currently running", s.runner.Running())
	writeMetric("agentsim_ws_clients", "gauge",
		"Number of active WebSocket client connections", s.bus.SubscriberCount())

	counts := s.bus.Counts()
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	writeHeader("agentsim_events_total", "counter", "Trace events emitted since startup by name")
	for _, n := range names {
		fmt.Fprintf(w, "agentsim_events_total{%s,event=\"%s\"} %d\n", labels, n, counts[n])
	}

	checkNames, checks := s.probe()
	if len(checkNames) > 0 {
		writeHeader("agentsim_dependency_up", "gauge", "Whether a dependency is reachable (1) or not (0)")
		for _, n := range checkNames {
			fmt.Fprintf(w, "agentsim_dependency_up{%s,dependency=\"%s\"} %d\n", labels, n, gauge(checks[n]))
		}
	}
}
