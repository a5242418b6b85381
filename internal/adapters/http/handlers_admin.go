package web

import (
	"bytes"
	"net/http"
	"time"

	"fellowship/internal/adapters/export"
	"fellowship/internal/adapters/http/middleware"
	auditStore "fellowship/internal/adapters/storage/audit"
	"fellowship/internal/application/projections"
	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/audit"
)

const (
	defaultPerfWindow = time.Hour
	perfTopN          = 10
)

func (s *Server) healthDeps() projections.HealthDeps {
	return projections.HealthDeps{
		Ping:              s.deps.Ping,
		MemberStore:       s.deps.Stores.Members,
		EventStore:        s.deps.Stores.Events,
		AnnouncementStore: s.deps.Stores.Announcements,
		ViewStore:         s.deps.Stores.Views,
		AuditStore:        s.deps.Stores.Audit,
		Metrics:           s.deps.Metrics,
		Log:               s.log,
	}
}

// handleListAudit handles GET /api/admin/audit
// ?category=&action=&severity=&actor_id=&resource_type=&resource_id=&from=&to=
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime("from", q.Get("from"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseTime("to", q.Get("to"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := projections.QueryAuditLog(r.Context(), projections.AuditLogQuery{
		Filter: auditStore.Filter{
			Category:     audit.Category(q.Get("category")),
			Action:       audit.Action(q.Get("action")),
			Severity:     audit.Severity(q.Get("severity")),
			ActorID:      q.Get("actor_id"),
			ResourceType: q.Get("resource_type"),
			ResourceID:   q.Get("resource_id"),
			From:         from,
			To:           to,
		},
		Page: pageFrom(r),
	}, projections.AuditLogDeps{AuditStore: s.deps.Stores.Audit})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries := res.Entries
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": res.Total})
}

// handleGetAudit handles GET /api/admin/audit/{id}
func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	entry, err := s.deps.Stores.Audit.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleAdminHealth handles GET /api/admin/health. A degraded report is
// still a 200.
func (s *Server) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, projections.QueryHealthReport(r.Context(), s.healthDeps(), s.deps.Now()))
}

// handleHealthz handles GET /healthz for load balancers.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := projections.QueryHealthReport(r.Context(), s.healthDeps(), s.deps.Now())
	status := http.StatusOK
	if report.Degraded() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":          report.Status,
		"store_reachable": report.StoreReachable,
	})
}

// handleReport handles GET /api/admin/report.xlsx. The workbook is rendered
// to memory first so a failure can still become a JSON error.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	now := s.deps.Now()
	report, err := projections.QueryAdminReport(r.Context(), projections.AdminReportDeps{
		Health: s.healthDeps(),
		Events: s.eventViewDeps(),
	}, now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteReportWorkbook(&buf, report); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="fellowship-report-`+now.Format(time.DateOnly)+`.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}

// handlePerf handles GET /api/admin/perf?window=15m
func (s *Server) handlePerf(w http.ResponseWriter, r *http.Request) {
	if s.deps.Perf == nil {
		middleware.RespondError(w, http.StatusNotFound, "not found", "performance collection is disabled")
		return
	}
	window := defaultPerfWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.writeError(w, r, apperr.Validation("window must be a positive duration such as 15m"))
			return
		}
		window = d
	}
	writeJSON(w, http.StatusOK, s.deps.Perf.Snapshot(s.deps.Now().Add(-window), perfTopN))
}
