package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goVaultd/internal/core/redemption"
)

var at = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) *Log {
	t.Helper()
	l, err := Open(context.Background(), Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "audit.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func exercise(t *testing.T, l *Log) {
	ctx := context.Background()
	entries := []redemption.AuditEntry{
		{Actor: "admin", Action: "setBaseFeeBps", Old: "100", New: "50", At: at},
		{Actor: "recovery", Action: "overrideDailyLiability", Target: "20101", Old: "0", New: "2500000000", At: at.Add(time.Minute)},
		{Actor: "admin", Action: "pause", Old: "false", New: "true", At: at.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, l.Record(ctx, e))
	}

	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, e := range all {
		assert.Equal(t, entries[i], e.AuditEntry)
		assert.NotEqual(t, [16]byte{}, [16]byte(e.ID))
	}

	byAdmin, err := l.List(ctx, Filter{Actor: "admin"})
	require.NoError(t, err)
	assert.Len(t, byAdmin, 2)

	overrides, err := l.List(ctx, Filter{Action: "overrideDailyLiability"})
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "20101", overrides[0].Target)

	recent, err := l.List(ctx, Filter{Since: at.Add(time.Minute), Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "overrideDailyLiability", recent[0].Action)
}

func TestSQLite(t *testing.T) {
	exercise(t, openSQLite(t))
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("VAULTD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VAULTD_TEST_POSTGRES_DSN not set")
	}
	l, err := Open(context.Background(), Config{Driver: DriverPostgres, DSN: dsn}, nil)
	require.NoError(t, err)
	defer l.Close()
	_, err = l.db.Exec(`DELETE FROM audit_log`)
	require.NoError(t, err)
	exercise(t, l)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")
	cfg := Config{Driver: DriverSQLite, DSN: path}

	l, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, redemption.AuditEntry{Actor: "admin", Action: "unpause", At: at}))
	require.NoError(t, l.Close())

	l, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer l.Close()
	got, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "unpause", got[0].Action)
}

func TestClosed(t *testing.T) {
	l := openSQLite(t)
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Record(context.Background(), redemption.AuditEntry{}), ErrClosed)
	_, err := l.List(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, l.Close())
}

func TestConfigValidation(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"}, nil)
	var dbErr *DatabaseError
	require.True(t, errors.As(err, &dbErr))
	assert.Equal(t, ErrorTypeConfiguration, dbErr.Type)
	assert.ErrorIs(t, err, ErrInvalidDriver)
	assert.False(t, IsRetryable(err))

	assert.ErrorIs(t, Config{Driver: DriverSQLite}.Validate(), ErrMissingDSN)
}

func TestRebind(t *testing.T) {
	sqlite := &Log{driver: DriverSQLite}
	assert.Equal(t, "a = ? AND b = ? LIMIT ?", sqlite.rebind("a = $1 AND b = $2 LIMIT $10"))

	pg := &Log{driver: DriverPostgres}
	assert.Equal(t, "a = $1", pg.rebind("a = $1"))
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(connectionError("open", "ping", errors.New("refused"))))
	assert.True(t, IsRetryable(queryError("record", "insert", errors.New("database is locked"))))
	assert.False(t, IsRetryable(queryError("record", "insert", errors.New("syntax error"))))
	assert.False(t, IsRetryable(errors.New("plain")))
}
