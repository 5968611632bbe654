package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the pool snapshot reported by the database health endpoint.
type PoolStats struct {
	ConnsTotal  int32 `json:"conns_total"`
	ConnsIdle   int32 `json:"conns_idle"`
	ConnsInUse  int32 `json:"conns_in_use"`
	ConnsMax    int32 `json:"conns_max"`
	Acquires    int64 `json:"acquires"`
	EmptyWaits  int64 `json:"empty_waits"`
	CancelWaits int64 `json:"cancel_waits"`
}

func snapshotPool(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		ConnsTotal:  s.TotalConns(),
		ConnsIdle:   s.IdleConns(),
		ConnsInUse:  s.AcquiredConns(),
		ConnsMax:    s.MaxConns(),
		Acquires:    s.AcquireCount(),
		EmptyWaits:  s.EmptyAcquireCount(),
		CancelWaits: s.CanceledAcquireCount(),
	}
}

type dbHealth struct {
	Database string    `json:"database"`
	PingMS   int64     `json:"ping_ms"`
	Error    string    `json:"error,omitempty"`
	Pool     PoolStats `json:"pool"`
}

const healthPingTimeout = 5 * time.Second

// HealthHandler reports database reachability for the monitoring surface:
// a timed ping plus a pool snapshot, 503 when the ping fails.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()

		start := time.Now()
		err := pool.Ping(ctx)
		body := dbHealth{
			Database: "up",
			PingMS:   time.Since(start).Milliseconds(),
			Pool:     snapshotPool(pool),
		}
		if err != nil {
			body.Database = "down"
			body.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}
