package web

import (
	"net/http"
	"strings"

	"fellowship/internal/application/orchestrators"
	"fellowship/internal/application/projections"
)

func (s *Server) announcementDeps() orchestrators.AnnouncementDeps {
	return orchestrators.AnnouncementDeps{
		AnnouncementStore: s.deps.Stores.Announcements,
		ViewStore:         s.deps.Stores.Views,
		Members:           s.deps.Stores.Members,
		Notifier:          s.deps.Notifier,
		Auditor:           s.deps.Auditor,
		BaseURL:           s.deps.BaseURL,
		GenerateID:        s.deps.GenerateID,
		Now:               s.deps.Now,
		Log:               s.log,
	}
}

func (s *Server) feedDeps() projections.AnnouncementFeedDeps {
	return projections.AnnouncementFeedDeps{
		AnnouncementStore: s.deps.Stores.Announcements,
		ViewStore:         s.deps.Stores.Views,
		Markdown:          s.deps.Markdown,
	}
}

// handleListAnnouncements handles GET /api/announcements
// Members see what is published and unexpired, pinned first. Admins may
// pass ?status=draft.
func (s *Server) handleListAnnouncements(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	res, err := projections.QueryAnnouncementFeed(r.Context(), projections.AnnouncementFeedQuery{
		MemberID:      p.MemberID,
		ViewerIsAdmin: p.IsAdmin(),
		Status:        r.URL.Query().Get("status"),
		Page:          pageFrom(r),
	}, s.feedDeps(), s.deps.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]announcementJSON, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, announcementItemView(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"announcements": items,
		"total":         res.Total,
		"unread":        res.Unread,
	})
}

// handleGetAnnouncement handles GET /api/announcements/{id}
func (s *Server) handleGetAnnouncement(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	item, err := projections.QueryAnnouncementDetail(r.Context(), projections.AnnouncementDetailQuery{
		AnnouncementID: r.PathValue("id"),
		MemberID:       p.MemberID,
		ViewerIsAdmin:  p.IsAdmin(),
	}, s.feedDeps(), s.deps.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, announcementItemView(item))
}

// handleCreateAnnouncement handles POST /api/announcements
// POST: the announcement is a draft until published
func (s *Server) handleCreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string  `json:"title"`
		Body      string  `json:"body"`
		Priority  string  `json:"priority"`
		Pinned    bool    `json:"pinned"`
		ExpiresAt *string `json:"expires_at"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expires, err := parseTimePtr("expires_at", req.ExpiresAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := orchestrators.ExecuteCreateAnnouncement(r.Context(), orchestrators.CreateAnnouncementInput{
		Actor:     actor(r),
		Title:     req.Title,
		Body:      req.Body,
		Priority:  req.Priority,
		Pinned:    req.Pinned,
		ExpiresAt: expires,
	}, s.announcementDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, announcementView(a))
}

// handleUpdateAnnouncement handles PATCH /api/announcements/{id}. An empty
// expires_at clears the expiry.
func (s *Server) handleUpdateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     *string `json:"title"`
		Body      *string `json:"body"`
		Priority  *string `json:"priority"`
		Pinned    *bool   `json:"pinned"`
		ExpiresAt *string `json:"expires_at"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	expires, err := parseTimePtr("expires_at", req.ExpiresAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := orchestrators.ExecuteUpdateAnnouncement(r.Context(), orchestrators.UpdateAnnouncementInput{
		Actor:          actor(r),
		AnnouncementID: r.PathValue("id"),
		Title:          req.Title,
		Body:           req.Body,
		Priority:       req.Priority,
		Pinned:         req.Pinned,
		ExpiresAt:      expires,
		ClearExpiry:    req.ExpiresAt != nil && strings.TrimSpace(*req.ExpiresAt) == "",
	}, s.announcementDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, announcementView(a))
}

// handlePublishAnnouncement handles POST /api/announcements/{id}/publish
func (s *Server) handlePublishAnnouncement(w http.ResponseWriter, r *http.Request) {
	a, err := orchestrators.ExecutePublishAnnouncement(r.Context(), orchestrators.AnnouncementRefInput{
		Actor:          actor(r),
		AnnouncementID: r.PathValue("id"),
	}, s.announcementDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, announcementView(a))
}

// handleDeleteAnnouncement handles DELETE /api/announcements/{id}
func (s *Server) handleDeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteDeleteAnnouncement(r.Context(), orchestrators.AnnouncementRefInput{
		Actor:          actor(r),
		AnnouncementID: r.PathValue("id"),
	}, s.announcementDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleViewAnnouncement handles POST /api/announcements/{id}/view
func (s *Server) handleViewAnnouncement(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteMarkAnnouncementViewed(r.Context(), orchestrators.MarkViewedInput{
		AnnouncementID: r.PathValue("id"),
		MemberID:       principal(r).MemberID,
	}, s.announcementDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
