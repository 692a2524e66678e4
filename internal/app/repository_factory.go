package app

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/internal/planning/infrastructure/persistence"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/outbox"
)

// RepositoryFactory creates repositories based on the database driver.
type RepositoryFactory struct {
	conn   database.Connection
	driver database.Driver
	url    string
}

// NewRepositoryFactory creates a new repository factory. url is the
// PostgreSQL connection string and is ignored for SQLite.
func NewRepositoryFactory(conn database.Connection, url string) *RepositoryFactory {
	return &RepositoryFactory{
		conn:   conn,
		driver: conn.Driver(),
		url:    url,
	}
}

// PlanStore creates the plan and history repository for the configured driver.
func (f *RepositoryFactory) PlanStore() (persistence.PlanStore, error) {
	switch f.driver {
	case database.DriverPostgres, database.DriverSQLite:
		return persistence.NewPlanStore(f.conn), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

// RescheduleLog creates the reschedule audit repository. On PostgreSQL the
// log gets its own lib/pq pool; the returned closer releases it.
func (f *RepositoryFactory) RescheduleLog(ctx context.Context) (domain.RescheduleLogRepository, func() error, error) {
	switch f.driver {
	case database.DriverPostgres:
		repo, err := persistence.OpenRescheduleLog(ctx, f.url)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil

	case database.DriverSQLite:
		return persistence.NewSQLiteRescheduleLogRepository(f.conn), func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

// OutboxRepository creates the outbox repository for the configured driver.
func (f *RepositoryFactory) OutboxRepository() (outbox.Repository, error) {
	switch f.driver {
	case database.DriverPostgres, database.DriverSQLite:
		return outbox.NewRepository(f.conn), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

// Driver returns the database driver being used.
func (f *RepositoryFactory) Driver() database.Driver {
	return f.driver
}

// Connection returns the underlying database connection.
func (f *RepositoryFactory) Connection() database.Connection {
	return f.conn
}
