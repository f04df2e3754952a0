package storage

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/project-reconciler/internal/config"
)

const eventLogPingTimeout = 5 * time.Second

// EventLogDB is the ClickHouse connection behind the upsert event log.
// Upserts append one small batch each and the history and activity reports
// read it back, so the pool stays small and inserts are buffered
// server-side instead of producing a part per upsert.
type EventLogDB struct {
	conn driver.Conn
}

// eventLogOptions maps the configuration onto driver options.
func eventLogOptions(cfg *config.ClickHouseConfig) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"async_insert":          1,
			"wait_for_async_insert": 1,
			"max_execution_time":    30,
		},
		DialTimeout:      eventLogPingTimeout,
		MaxOpenConns:     4,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
}

// OpenEventLog connects to ClickHouse and checks the server answers.
func OpenEventLog(ctx context.Context, cfg *config.ClickHouseConfig) (*EventLogDB, error) {
	conn, err := clickhouse.Open(eventLogOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open event log connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, eventLogPingTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping event log database %s: %w", cfg.Database, err)
	}

	return &EventLogDB{conn: conn}, nil
}

func (db *EventLogDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Ping is the health check of the event log.
func (db *EventLogDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Exec runs a statement that returns no rows, such as a migration step.
func (db *EventLogDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}

// PrepareBatch starts a batched INSERT.
func (db *EventLogDB) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return db.conn.PrepareBatch(ctx, query)
}

// Query runs a report query.
func (db *EventLogDB) Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	return db.conn.Query(ctx, query, args...)
}
