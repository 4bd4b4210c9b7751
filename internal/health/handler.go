// Package health reports whether the client's dependencies are reachable.
package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"

	healthy   = "healthy"
	unhealthy = "unhealthy"
)

// Checker is anything that can verify its own connectivity.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// RedisChecker adapts redis.Client to Checker.
type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// Ping checks Redis connectivity.
func (r *RedisChecker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// ServiceChecker probes the health endpoint of the shortening service.
type ServiceChecker struct {
	httpClient *http.Client
	baseURL    string
}

func NewServiceChecker(httpClient *http.Client, baseURL string) *ServiceChecker {
	return &ServiceChecker{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Ping succeeds when GET /api/health answers 2xx.
func (s *ServiceChecker) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

// Check is one named dependency.
type Check struct {
	Name    string
	Checker Checker
}

// Component is the outcome of one check.
type Component struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report is the aggregated health of every check.
type Report struct {
	Status     string      `json:"status"`
	Components []Component `json:"components"`
}

// Healthy reports whether every component passed.
func (r Report) Healthy() bool {
	return r.Status == StatusOK
}

// Handler runs a fixed set of checks.
type Handler struct {
	checks []Check
	logger *zap.Logger
}

func NewHandler(logger *zap.Logger, checks ...Check) *Handler {
	return &Handler{checks: checks, logger: logger}
}

// Check runs every check in order. A failing check degrades the report
// but never stops the remaining checks.
func (h *Handler) Check(ctx context.Context) Report {
	report := Report{
		Status:     StatusOK,
		Components: make([]Component, 0, len(h.checks)),
	}

	for _, c := range h.checks {
		component := Component{Name: c.Name, Status: healthy}

		if err := c.Checker.Ping(ctx); err != nil {
			component.Status = unhealthy
			component.Error = err.Error()
			report.Status = StatusDegraded

			h.logger.Warn("health check failed", zap.String("component", c.Name), zap.Error(err))
		}

		report.Components = append(report.Components, component)
	}

	return report
}
