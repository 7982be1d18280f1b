package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type staticHealth ComponentHealth

func (s staticHealth) Health(context.Context) ComponentHealth { return ComponentHealth(s) }

type staticCount int

func (c staticCount) Count() int { return int(c) }

func TestHealthServiceStatus(t *testing.T) {
	ok := staticHealth{Status: HealthHealthy}
	down := staticHealth{Status: HealthUnhealthy, Message: "timeout"}
	off := staticHealth{Status: HealthDisabled}

	tests := []struct {
		name       string
		enrichment HealthChecker
		board      HealthChecker
		want       string
		healthy    bool
	}{
		{"all healthy", ok, ok, HealthHealthy, true},
		{"enrichment disabled", off, ok, HealthHealthy, true},
		{"enrichment down", down, ok, "degraded", true},
		{"board down", ok, down, HealthUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewHealthService("1.0.0", tt.enrichment, tt.board, staticCount(4)).Check(context.Background())

			assert.Equal(t, tt.want, report.Status)
			assert.Equal(t, tt.healthy, report.Healthy())
			assert.Equal(t, 4, report.ActiveSessions)
			assert.Len(t, report.Checks, 2)
			assert.Equal(t, "KB Request Bot", report.Service)
		})
	}
}

func TestHealthServiceExtraChecks(t *testing.T) {
	ok := staticHealth{Status: HealthHealthy}
	svc := NewHealthService("1.0.0", ok, ok, nil)
	svc.AddCheck("database", HealthCheckFunc(func(context.Context) ComponentHealth {
		return ComponentHealth{Status: HealthUnhealthy, Message: "connection refused"}
	}), true)

	report := svc.Check(context.Background())

	assert.Equal(t, HealthUnhealthy, report.Status)
	assert.Equal(t, "connection refused", report.Checks["database"].Message)
	assert.Zero(t, report.ActiveSessions)
}
