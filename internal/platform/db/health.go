package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

type healthSource interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const (
	StatusHealthy    = "healthy"
	StatusUnhealthy  = "unhealthy"
	StatusUnmigrated = "unmigrated"
)

// HealthReport is the body of /health/db. SchemaVersion is the highest
// applied migration.
type HealthReport struct {
	Status        string     `json:"status"`
	Error         string     `json:"error,omitempty"`
	Latency       string     `json:"latency"`
	SchemaVersion int        `json:"schema_version"`
	Pool          *PoolStats `json:"pool,omitempty"`
}

func (r HealthReport) Healthy() bool { return r.Status == StatusHealthy }

// Check pings the database and reads the applied schema version. A database
// that answers but has no migrations applied is reported as unmigrated.
func Check(ctx context.Context, src healthSource) HealthReport {
	start := time.Now()
	if err := src.Ping(ctx); err != nil {
		return HealthReport{Status: StatusUnhealthy, Error: err.Error(), Latency: time.Since(start).String()}
	}
	report := HealthReport{Status: StatusHealthy, Latency: time.Since(start).String()}

	err := src.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&report.SchemaVersion)
	if err != nil {
		report.Status = StatusUnmigrated
		report.Error = err.Error()
	} else if report.SchemaVersion == 0 {
		report.Status = StatusUnmigrated
	}
	return report
}

func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		if pool == nil {
			return c.JSON(http.StatusServiceUnavailable, HealthReport{Status: StatusUnhealthy, Error: "database not configured"})
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := Check(ctx, pool)
		report.Pool = GetPoolStats(pool)
		if !report.Healthy() {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
