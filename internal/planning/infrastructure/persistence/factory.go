package persistence

import (
	"github.com/felixgeelhaar/tempo/internal/planning/domain"
	"github.com/felixgeelhaar/tempo/internal/shared/infrastructure/database"
)

// PlanStore reads and writes plans and answers history queries.
type PlanStore interface {
	domain.PlanRepository
	domain.HistoryRepository
}

// NewPlanStore picks the plan repository for the connection's backend.
func NewPlanStore(conn database.Connection) PlanStore {
	if conn.Driver() == database.DriverPostgres {
		return NewPostgresPlanRepository(conn)
	}
	return NewSQLitePlanRepository(conn)
}
