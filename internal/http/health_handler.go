package http

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

const HealthPath = "/healthz"

// HealthCheck reports an error when a dependency is unusable.
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// WithHealthCheck adds a named dependency check to the health route.
func (s *Service) WithHealthCheck(name string, check HealthCheck) *Service {
	if s.healthChecks == nil {
		s.healthChecks = make(map[string]HealthCheck)
	}
	s.healthChecks[name] = check
	return s
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.healthChecks))
	for name := range s.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	res := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := s.healthChecks[name](ctx); err != nil {
			s.logger.WarnContext(ctx, "health check failed", slog.String("check", name), slog.Any("error", err))
			res.Checks[name] = err.Error()
			res.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}

	writeJSON(r, w, status, res)
}
