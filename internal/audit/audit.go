// Package audit records a change log of user-visible actions. Audit
// failures are logged and never propagate to the calling operation.
package audit

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"options-desk/internal/store"
)

// Auditor appends entries to the audit log.
type Auditor struct {
	store  store.DataStore
	logger zerolog.Logger
}

// New creates an auditor backed by the data store.
func New(st store.DataStore, logger zerolog.Logger) *Auditor {
	return &Auditor{store: st, logger: logger}
}

// Record appends an audit entry. details and snapshot are marshalled
// to JSON; nil values produce empty columns.
func (a *Auditor) Record(ctx context.Context, action, entity string, entityID, userID int64, details, snapshot interface{}) {
	entry := &store.AuditEntry{
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		UserID:   userID,
	}

	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			entry.Details = string(b)
		}
	}
	if snapshot != nil {
		if b, err := json.Marshal(snapshot); err == nil {
			entry.Snapshot = string(b)
		}
	}

	if err := a.store.AppendAudit(ctx, entry); err != nil {
		a.logger.Warn().Err(err).
			Str("action", action).
			Str("entity", entity).
			Int64("entity_id", entityID).
			Msg("Audit write failed")
	}
}

// Recent returns the most recent audit entries.
func (a *Auditor) Recent(ctx context.Context, limit int) ([]store.AuditEntry, error) {
	return a.store.RecentAudit(ctx, limit)
}

// Stats returns audit log statistics for health reporting.
func (a *Auditor) Stats(ctx context.Context) (*store.AuditStats, error) {
	return a.store.AuditStats(ctx)
}
