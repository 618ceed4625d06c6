package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

type fakeRow struct {
	version int
	err     error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int) = r.version
	return nil
}

type fakeSource struct {
	pingErr error
	row     fakeRow
}

func (f fakeSource) Ping(context.Context) error { return f.pingErr }

func (f fakeSource) QueryRow(context.Context, string, ...interface{}) pgx.Row { return f.row }

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		src     fakeSource
		status  string
		version int
	}{
		{"migrated", fakeSource{row: fakeRow{version: 3}}, StatusHealthy, 3},
		{"no migrations", fakeSource{row: fakeRow{}}, StatusUnmigrated, 0},
		{"missing table", fakeSource{row: fakeRow{err: errors.New(`relation "schema_migrations" does not exist`)}}, StatusUnmigrated, 0},
		{"down", fakeSource{pingErr: errors.New("connection refused")}, StatusUnhealthy, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Check(context.Background(), tt.src)
			if r.Status != tt.status || r.SchemaVersion != tt.version {
				t.Errorf("expected %s/%d, got %s/%d", tt.status, tt.version, r.Status, r.SchemaVersion)
			}
			if r.Latency == "" {
				t.Error("expected latency")
			}
		})
	}
}

func TestHealthHandler_NoPool(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

	if err := HealthHandler(nil)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["status"] != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %v", m["status"])
	}
}
