package endpoints

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jackzampolin/mdindex/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	Gatherer prometheus.Gatherer
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},
		&MetricsEndpoint{Gatherer: cfg.Gatherer},

		// Scheduler endpoints
		&PendingEndpoint{},
		&IndexingEndpoint{},
		&ConfigEndpoint{},

		// AU endpoints
		&GetAuEndpoint{},
		&EnqueueEndpoint{},
		&DisableEndpoint{},
		&StopEndpoint{},
		&DeleteAuEndpoint{},
	}
}
