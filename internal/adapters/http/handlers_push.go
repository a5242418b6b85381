package web

import (
	"net/http"

	"fellowship/internal/adapters/http/middleware"
	"fellowship/internal/application/orchestrators"
	"fellowship/internal/domain/apperr"
)

func (s *Server) pushDeps() orchestrators.PushDeps {
	return orchestrators.PushDeps{
		PushStore:  s.deps.Stores.Push,
		GenerateID: s.deps.GenerateID,
		Now:        s.deps.Now,
		Log:        s.log,
	}
}

// handleVAPIDKey handles GET /api/push/vapid-public-key. It is 404 when push
// is not configured, which tells the frontend not to offer it.
func (s *Server) handleVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if s.deps.VAPIDPublicKey == "" {
		middleware.RespondError(w, http.StatusNotFound, "not found", "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": s.deps.VAPIDPublicKey})
}

// handleListSubscriptions handles GET /api/push/subscriptions
func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.deps.Stores.Push.ListByMember(r.Context(), principal(r).MemberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]subscriptionJSON, 0, len(subs))
	for _, sub := range subs {
		out = append(out, subscriptionView(sub))
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": out})
}

// subscribeRequest mirrors the browser's PushSubscription.toJSON().
type subscribeRequest struct {
	Endpoint       string `json:"endpoint"`
	ExpirationTime *int64 `json:"expirationTime"`
	Keys           struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// handleSubscribe handles POST /api/push/subscriptions
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := orchestrators.ExecuteSubscribePush(r.Context(), orchestrators.SubscribePushInput{
		MemberID:  principal(r).MemberID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		UserAgent: r.UserAgent(),
	}, s.pushDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscriptionView(sub))
}

// handleUnsubscribe handles DELETE /api/push/subscriptions. The endpoint
// comes from ?endpoint= or a JSON body.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" && r.ContentLength != 0 {
		var req struct {
			Endpoint string `json:"endpoint"`
		}
		if err := strictDecode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		endpoint = req.Endpoint
	}
	if endpoint == "" {
		s.writeError(w, r, apperr.Validation("endpoint is required"))
		return
	}
	err := orchestrators.ExecuteUnsubscribePush(r.Context(), orchestrators.UnsubscribePushInput{
		MemberID: principal(r).MemberID,
		Endpoint: endpoint,
	}, s.pushDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
