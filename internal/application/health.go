package application

import (
	"context"

	"github.com/jobrunner/geosight/internal/domain"
	"github.com/jobrunner/geosight/internal/ports/input"
)

// HealthService provides health check functionality.
type HealthService struct {
	catalog    input.ReferenceCatalog
	components map[string]string
}

// NewHealthService creates a new health service. components lists the
// static state of configured adapters, e.g. "publisher": "kafka".
func NewHealthService(catalog input.ReferenceCatalog, components map[string]string) *HealthService {
	return &HealthService{
		catalog:    catalog,
		components: components,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true // Basic health check
}

// IsReady returns true once the reference load has settled. A failed or
// absent reference dataset degrades naming but does not block reports.
func (s *HealthService) IsReady(ctx context.Context) bool {
	switch s.catalog.Info(ctx).Status {
	case domain.ReferenceStatusPending, domain.ReferenceStatusLoading:
		return false
	default:
		return true
	}
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	info := s.catalog.Info(ctx)

	components := make(map[string]string, len(s.components)+1)
	for k, v := range s.components {
		components[k] = v
	}
	components["reference"] = string(info.Status)

	return input.HealthDetails{
		Healthy:           s.IsHealthy(ctx),
		Ready:             s.IsReady(ctx),
		ReferenceStatus:   string(info.Status),
		ReferenceFeatures: info.Features,
		Components:        components,
	}
}
