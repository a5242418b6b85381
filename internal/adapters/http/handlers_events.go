package web

import (
	"bytes"
	"net/http"
	"time"

	"fellowship/internal/adapters/export"
	"fellowship/internal/application/orchestrators"
	"fellowship/internal/application/projections"
	"fellowship/internal/domain/event"
)

// calendarLookback is how far back the public feed reaches so recent
// events stay on subscribed calendars.
const calendarLookback = 30 * 24 * time.Hour

func (s *Server) eventDeps() orchestrators.EventDeps {
	return orchestrators.EventDeps{
		EventStore: s.deps.Stores.Events,
		RSVPStore:  s.deps.Stores.RSVPs,
		Members:    s.deps.Stores.Members,
		Notifier:   s.deps.Notifier,
		Auditor:    s.deps.Auditor,
		BaseURL:    s.deps.BaseURL,
		GenerateID: s.deps.GenerateID,
		Now:        s.deps.Now,
		Log:        s.log,
	}
}

func (s *Server) eventViewDeps() projections.EventDeps {
	return projections.EventDeps{EventStore: s.deps.Stores.Events, RSVPStore: s.deps.Stores.RSVPs}
}

func (s *Server) rsvpDeps() orchestrators.RSVPDeps {
	return orchestrators.RSVPDeps{
		EventStore: s.deps.Stores.Events,
		RSVPStore:  s.deps.Stores.RSVPs,
		GenerateID: s.deps.GenerateID,
		Now:        s.deps.Now,
		Log:        s.log,
	}
}

// handleListEvents handles GET /api/events?from=&to=&include_cancelled=
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
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
	res, err := projections.QueryEventList(r.Context(), projections.EventListQuery{
		From:             from,
		To:               to,
		IncludeCancelled: queryBool(r, "include_cancelled"),
		Page:             pageFrom(r),
	}, s.eventViewDeps(), s.deps.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": eventViews(res.Events),
		"total":  res.Total,
	})
}

// handleGetEvent handles GET /api/events/{id}
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	d, err := projections.QueryEventDetail(r.Context(), projections.EventDetailQuery{
		EventID:  r.PathValue("id"),
		MemberID: principal(r).MemberID,
	}, s.eventViewDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventDetailView(d))
}

type createEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	StartsAt    string `json:"starts_at"`
	EndsAt      string `json:"ends_at"`
	Capacity    int    `json:"capacity"`
	Notify      bool   `json:"notify"`
}

// handleCreateEvent handles POST /api/events
// PRE: caller is an admin or leader
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	starts, err := parseTime("starts_at", req.StartsAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ends, err := parseTime("ends_at", req.EndsAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := orchestrators.ExecuteCreateEvent(r.Context(), orchestrators.CreateEventInput{
		Actor:       actor(r),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    starts,
		EndsAt:      ends,
		Capacity:    req.Capacity,
		Notify:      req.Notify,
	}, s.eventDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventView(e))
}

// handleUpdateEvent handles PATCH /api/events/{id}
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Location    *string `json:"location"`
		StartsAt    *string `json:"starts_at"`
		EndsAt      *string `json:"ends_at"`
		Capacity    *int    `json:"capacity"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	starts, err := parseTimePtr("starts_at", req.StartsAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ends, err := parseTimePtr("ends_at", req.EndsAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := orchestrators.ExecuteUpdateEvent(r.Context(), orchestrators.UpdateEventInput{
		Actor:       actor(r),
		EventID:     r.PathValue("id"),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    starts,
		EndsAt:      ends,
		Capacity:    req.Capacity,
	}, s.eventDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventView(e))
}

// handleCancelEvent handles POST /api/events/{id}/cancel
// POST: attendees are notified; RSVPs are kept
func (s *Server) handleCancelEvent(w http.ResponseWriter, r *http.Request) {
	e, err := orchestrators.ExecuteCancelEvent(r.Context(), orchestrators.EventRefInput{
		Actor:   actor(r),
		EventID: r.PathValue("id"),
	}, s.eventDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventView(e))
}

// handleDeleteEvent handles DELETE /api/events/{id}
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteDeleteEvent(r.Context(), orchestrators.EventRefInput{
		Actor:   actor(r),
		EventID: r.PathValue("id"),
	}, s.eventDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListRSVPs handles GET /api/events/{id}/rsvps
func (s *Server) handleListRSVPs(w http.ResponseWriter, r *http.Request) {
	rsvps, err := projections.QueryEventRSVPs(r.Context(), r.PathValue("id"), s.eventViewDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]rsvpJSON, 0, len(rsvps))
	for _, rv := range rsvps {
		out = append(out, rsvpView(rv))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rsvps": out})
}

type rsvpRequest struct {
	Status string `json:"status"`
	Guests int    `json:"guests"`
	Note   string `json:"note"`
}

func (s *Server) decodeRSVP(w http.ResponseWriter, r *http.Request) (orchestrators.RSVPInput, error) {
	var req rsvpRequest
	if err := strictDecode(w, r, &req); err != nil {
		return orchestrators.RSVPInput{}, err
	}
	return orchestrators.RSVPInput{
		EventID:  r.PathValue("id"),
		MemberID: principal(r).MemberID,
		Status:   req.Status,
		Guests:   req.Guests,
		Note:     req.Note,
	}, nil
}

// handleCreateRSVP handles POST /api/events/{id}/rsvp
func (s *Server) handleCreateRSVP(w http.ResponseWriter, r *http.Request) {
	in, err := s.decodeRSVP(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rv, err := orchestrators.ExecuteCreateRSVP(r.Context(), in, s.rsvpDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rsvpView(rv))
}

// handleChangeRSVP handles PUT /api/events/{id}/rsvp
func (s *Server) handleChangeRSVP(w http.ResponseWriter, r *http.Request) {
	in, err := s.decodeRSVP(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rv, err := orchestrators.ExecuteChangeRSVP(r.Context(), in, s.rsvpDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rsvpView(rv))
}

// handleWithdrawRSVP handles DELETE /api/events/{id}/rsvp
func (s *Server) handleWithdrawRSVP(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteWithdrawRSVP(r.Context(), orchestrators.RSVPInput{
		EventID:  r.PathValue("id"),
		MemberID: principal(r).MemberID,
	}, s.rsvpDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCalendar handles GET /api/calendar.ics, the public iCalendar feed of
// scheduled events.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := s.deps.Now()
	res, err := projections.QueryEventList(r.Context(), projections.EventListQuery{
		From: now.Add(-calendarLookback),
		Page: projections.Page{Limit: 200},
	}, s.eventViewDeps(), now)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	scheduled := make([]event.Event, 0, len(res.Events))
	for _, e := range res.Events {
		if !e.IsCancelled() {
			scheduled = append(scheduled, e)
		}
	}
	var buf bytes.Buffer
	if err := export.WriteCalendar(&buf, scheduled, s.deps.BaseURL, now); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="events.ics"`)
	_, _ = w.Write(buf.Bytes())
}
