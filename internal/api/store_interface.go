package api

import (
	"context"

	"github.com/soaringjerry/intake/internal/services"
)

// Store is everything the HTTP layer needs from persistence. The SQLite store
// satisfies it; each service only sees its own narrow slice.
type Store interface {
	services.AuthStore
	services.CycleStore
	services.QuestionStore
	services.PhaseStore
	services.ApplicationStore
	services.ExportStore

	ListAudit(ctx context.Context, limit int) ([]services.AuditEntry, error)
}
