package db

import (
	"context"
	"fmt"
	"time"
)

type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
}

type PoolStats struct {
	AcquireCount         int64 `json:"acquire_count"`
	AcquiredConns        int32 `json:"acquired_conns"`
	CanceledAcquireCount int64 `json:"canceled_acquire_count"`
	ConstructingConns    int32 `json:"constructing_conns"`
	IdleConns            int32 `json:"idle_conns"`
	MaxConns             int32 `json:"max_conns"`
	TotalConns           int32 `json:"total_conns"`
}

// HealthCheck pings then runs a trivial query, bounding both under a 5s
// deadline regardless of the caller's own context deadline.
func (p *Pool) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := HealthStatus{Stats: p.poolStats()}

	if err := p.Pool.Ping(healthCtx); err != nil {
		status.Error = fmt.Sprintf("ping failed: %v", err)
		status.ResponseTime = time.Since(start)
		return status
	}

	var result int
	if err := p.Pool.QueryRow(healthCtx, "SELECT 1").Scan(&result); err != nil {
		status.Error = fmt.Sprintf("query failed: %v", err)
		status.ResponseTime = time.Since(start)
		return status
	}
	if result != 1 {
		status.Error = "unexpected query result"
		status.ResponseTime = time.Since(start)
		return status
	}

	status.Healthy = true
	status.ResponseTime = time.Since(start)
	return status
}

func (p *Pool) poolStats() PoolStats {
	s := p.Pool.Stat()
	return PoolStats{
		AcquireCount:         s.AcquireCount(),
		AcquiredConns:        s.AcquiredConns(),
		CanceledAcquireCount: s.CanceledAcquireCount(),
		ConstructingConns:    s.ConstructingConns(),
		IdleConns:            s.IdleConns(),
		MaxConns:             s.MaxConns(),
		TotalConns:           s.TotalConns(),
	}
}

func (p *Pool) IsHealthy(ctx context.Context) bool {
	return p.HealthCheck(ctx).Healthy
}
