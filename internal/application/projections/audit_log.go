package projections

import (
	"context"

	auditStore "fellowship/internal/adapters/storage/audit"
	"fellowship/internal/domain/audit"
)

// AuditLogQuery filters the audit log.
type AuditLogQuery struct {
	Filter auditStore.Filter
	Page   Page
}

// AuditLogResult is one page of entries, newest first.
type AuditLogResult struct {
	Entries []audit.Entry
	Total   int64
}

// AuditLogDeps holds dependencies for QueryAuditLog.
type AuditLogDeps struct {
	AuditStore AuditStore
}

// QueryAuditLog returns a filtered page of the audit log.
// PRE: caller is an admin
func QueryAuditLog(ctx context.Context, query AuditLogQuery, deps AuditLogDeps) (AuditLogResult, error) {
	page := query.Page.normalize()
	entries, err := deps.AuditStore.List(ctx, query.Filter, page.Limit, page.Offset)
	if err != nil {
		return AuditLogResult{}, err
	}
	total, err := deps.AuditStore.Count(ctx, query.Filter)
	if err != nil {
		return AuditLogResult{}, err
	}
	return AuditLogResult{Entries: entries, Total: total}, nil
}
