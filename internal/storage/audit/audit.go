// Package audit keeps the append-only trail of privileged changes in a SQL
// database. sqlite (modernc, no cgo) and postgres (lib/pq) are supported.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/LeJamon/goVaultd/internal/core/redemption"
	"github.com/LeJamon/goVaultd/internal/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

const schema = `CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	at_ns      BIGINT NOT NULL,
	actor      TEXT NOT NULL,
	action     TEXT NOT NULL,
	target     TEXT NOT NULL,
	old_value  TEXT NOT NULL,
	new_value  TEXT NOT NULL
)`

const index = `CREATE INDEX IF NOT EXISTS audit_log_at ON audit_log (at_ns, id)`

// Config selects the database.
type Config struct {
	Driver         string
	DSN            string
	MaxOpenConns   int
	DefaultTimeout time.Duration
}

// Validate checks the driver and DSN.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, c.Driver)
	}
	if c.DSN == "" {
		return ErrMissingDSN
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("max open connections must be >= 0")
	}
	return nil
}

// Entry is one stored audit record.
type Entry struct {
	ID uuid.UUID
	redemption.AuditEntry
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Actor  types.Address
	Action string
	Since  time.Time
	Limit  int
}

// Log is an audit trail backed by database/sql.
type Log struct {
	db      *sql.DB
	driver  string
	timeout time.Duration
	logger  *zap.Logger
}

// Open connects, pings and creates the schema.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Log, error) {
	if err := cfg.Validate(); err != nil {
		return nil, configurationError("open", "invalid configuration", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, connectionError("open", "failed to open database connection", err)
	}
	if cfg.Driver == DriverSQLite {
		// one writer avoids SQLITE_BUSY on the shared file
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	l := &Log{db: db, driver: cfg.Driver, timeout: timeout, logger: logger.Named("audit")}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, connectionError("open", "failed to ping database", err)
	}

	for _, stmt := range []string{schema, index} {
		if _, err := db.ExecContext(pingCtx, stmt); err != nil {
			db.Close()
			return nil, schemaError("open", "failed to initialize schema", err)
		}
	}

	l.logger.Info("audit log opened", zap.String("driver", cfg.Driver))
	return l, nil
}

// Record appends entry.
func (l *Log) Record(ctx context.Context, entry redemption.AuditEntry) error {
	if l.db == nil {
		return ErrClosed
	}
	id, err := uuid.NewV7()
	if err != nil {
		return queryError("record", "failed to generate id", err)
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	_, err = l.db.ExecContext(ctx, l.rebind(
		`INSERT INTO audit_log (id, at_ns, actor, action, target, old_value, new_value)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		id.String(), at.UnixNano(), entry.Actor.String(), entry.Action, entry.Target, entry.Old, entry.New,
	)
	if err != nil {
		return queryError("record", "failed to insert audit entry", err)
	}
	return nil
}

// List returns matching entries oldest first.
func (l *Log) List(ctx context.Context, f Filter) ([]Entry, error) {
	if l.db == nil {
		return nil, ErrClosed
	}

	query := `SELECT id, at_ns, actor, action, target, old_value, new_value FROM audit_log WHERE 1=1`
	var args []interface{}
	if f.Actor != "" {
		args = append(args, f.Actor.String())
		query += fmt.Sprintf(" AND actor = $%d", len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since.UnixNano())
		query += fmt.Sprintf(" AND at_ns >= $%d", len(args))
	}
	query += " ORDER BY at_ns, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	if err != nil {
		return nil, queryError("list", "failed to query audit log", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			id    string
			atNs  int64
			actor string
		)
		if err := rows.Scan(&id, &atNs, &actor, &e.Action, &e.Target, &e.Old, &e.New); err != nil {
			return nil, queryError("list", "failed to scan row", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, queryError("list", "invalid entry id", err)
		}
		e.Actor = types.Address(actor)
		e.At = time.Unix(0, atNs).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("list", "failed to iterate rows", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// rebind turns $N placeholders into ? for sqlite.
func (l *Log) rebind(query string) string {
	if l.driver != DriverSQLite {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var _ redemption.AuditSink = (*Log)(nil)
