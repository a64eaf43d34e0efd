package core

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole health check, probes included.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is one subsystem check run by GET /health.
type HealthProbe interface {
	// Name identifies the component in the response ("ledger").
	Name() string

	// Check reports the subsystem state, respecting the context deadline.
	Check(ctx context.Context) error
}

// PingProbe adapts a bare ping function to the HealthProbe interface, so
// the ledger stores' Ping methods register without wrapper types.
type PingProbe struct {
	name string
	ping func(context.Context) error
}

// NewPingProbe names a ping function for health reporting.
func NewPingProbe(name string, ping func(context.Context) error) *PingProbe {
	return &PingProbe{name: name, ping: ping}
}

func (p *PingProbe) Name() string { return p.name }

func (p *PingProbe) Check(ctx context.Context) error { return p.ping(ctx) }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs the registered probes and reports 200 when everything
// is reachable, 503 otherwise. The endpoint is public and mounted at
// GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	components := make(map[string]componentStatus, len(s.HealthProbes))
	healthy := true

	for _, probe := range s.HealthProbes {
		if err := probe.Check(ctx); err != nil {
			healthy = false
			components[probe.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		components[probe.Name()] = componentStatus{Status: "healthy"}
	}

	resp := healthResponse{Status: "healthy", Components: components}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
