// Package migrate applies the embedded SQL migrations using golang-migrate.
package migrate

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"

	"github.com/jrsteele09/auth-service/internal/db"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"

	// ConnectTimeout is added to a DSN that does not set its own connect_timeout
	ConnectTimeout = 5 * time.Second
)

// Run applies migrations in the given direction. An already-current schema is not an error.
// When ctx ends first Run returns its error and asks golang-migrate to stop after the
// migration in progress.
func Run(ctx context.Context, dsn string, direction string) error {
	if dsn == "" {
		return errors.New("[migrate.Run] DATABASE_URL is not set")
	}
	if direction != DirectionUp && direction != DirectionDown {
		return errors.Errorf("[migrate.Run] direction must be up or down, got %q", direction)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "[migrate.Run]")
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "[migrate.Run] source")
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, BoundedDSN(dsn, ConnectTimeout))
	if err != nil {
		return errors.Wrap(err, "[migrate.Run] connect")
	}

	done := make(chan error, 1)
	go func() {
		defer func() { _, _ = m.Close() }()
		if direction == DirectionUp {
			done <- m.Up()
			return
		}
		done <- m.Down()
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return errors.Wrapf(err, "[migrate.Run] %s", direction)
		}
		return nil
	case <-ctx.Done():
		m.GracefulStop <- true
		return errors.Wrapf(ctx.Err(), "[migrate.Run] %s", direction)
	}
}

// BoundedDSN adds connect_timeout to dsn unless it already has one. Both URL and
// keyword/value DSNs are understood.
func BoundedDSN(dsn string, timeout time.Duration) string {
	seconds := strconv.Itoa(max(1, int(timeout/time.Second)))

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		if q.Get("connect_timeout") != "" {
			return dsn
		}
		q.Set("connect_timeout", seconds)
		u.RawQuery = q.Encode()
		return u.String()
	}

	if strings.Contains(dsn, "connect_timeout=") {
		return dsn
	}
	return strings.TrimSpace(dsn) + " connect_timeout=" + seconds
}
