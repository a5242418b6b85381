package web

import (
	"net/http"

	"fellowship/internal/application/orchestrators"
	"fellowship/internal/application/projections"
)

func (s *Server) messageDeps() orchestrators.MessageDeps {
	return orchestrators.MessageDeps{
		MessageStore: s.deps.Stores.Messages,
		Members:      s.deps.Stores.Members,
		Notifier:     s.deps.Notifier,
		BaseURL:      s.deps.BaseURL,
		GenerateID:   s.deps.GenerateID,
		Now:          s.deps.Now,
		Log:          s.log,
	}
}

func (s *Server) mailbox(w http.ResponseWriter, r *http.Request, folder string) {
	res, err := projections.QueryMailbox(r.Context(), projections.MailboxQuery{
		MemberID: principal(r).MemberID,
		Folder:   folder,
		Page:     pageFrom(r),
	}, projections.MailboxDeps{MessageStore: s.deps.Stores.Messages})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messageViews(res.Messages),
		"total":    res.Total,
		"unread":   res.Unread,
	})
}

// handleInbox handles GET /api/messages
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	s.mailbox(w, r, projections.FolderInbox)
}

// handleSent handles GET /api/messages/sent
func (s *Server) handleSent(w http.ResponseWriter, r *http.Request) {
	s.mailbox(w, r, projections.FolderSent)
}

// handleSendMessage handles POST /api/messages
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientID string `json:"recipient_id"`
		Subject     string `json:"subject"`
		Body        string `json:"body"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := orchestrators.ExecuteSendMessage(r.Context(), orchestrators.SendMessageInput{
		SenderID:    principal(r).MemberID,
		RecipientID: req.RecipientID,
		Subject:     req.Subject,
		Body:        req.Body,
	}, s.messageDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageView(msg))
}

// handleReadMessage handles GET /api/messages/{id}
// POST: opening a received message marks it read
func (s *Server) handleReadMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := orchestrators.ExecuteReadMessage(r.Context(), orchestrators.MessageRefInput{
		MessageID: r.PathValue("id"),
		MemberID:  principal(r).MemberID,
	}, s.messageDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageView(msg))
}

// handleDeleteMessage handles DELETE /api/messages/{id}
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteDeleteMessage(r.Context(), orchestrators.MessageRefInput{
		MessageID: r.PathValue("id"),
		MemberID:  principal(r).MemberID,
	}, s.messageDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
