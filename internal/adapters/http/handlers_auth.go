package web

import (
	"net/http"

	"fellowship/internal/adapters/http/middleware"
	"fellowship/internal/application/orchestrators"
	"fellowship/internal/application/projections"
)

type registerRequest struct {
	Email     string       `json:"email"`
	Password  string       `json:"password"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	Phone     string       `json:"phone"`
	Privacy   *privacyJSON `json:"privacy"`
}

// handleRegister handles POST /api/auth/register
// POST: 201 with the new member, always with the member role
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	input := orchestrators.RegisterMemberInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	if req.Privacy != nil {
		p := req.Privacy.toDomain()
		input.Privacy = &p
	}
	m, err := orchestrators.ExecuteRegisterMember(r.Context(), input, orchestrators.RegisterMemberDeps{
		MemberStore: s.deps.Stores.Members,
		GenerateID:  s.deps.GenerateID,
		Now:         s.deps.Now,
		Log:         s.log,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, memberView(m.VisibleTo(m.ID, false)))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    int64      `json:"expires_at"`
	Member       memberJSON `json:"member"`
}

// handleLogin handles POST /api/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}, orchestrators.LoginDeps{
		MemberStore: s.deps.Stores.Members,
		Tokens:      s.deps.Tokens,
		Auditor:     s.deps.Auditor,
		Now:         s.deps.Now,
		Log:         s.log,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresAt:    res.Tokens.ExpiresAt,
		Member:       memberView(res.Member.VisibleTo(res.Member.ID, false)),
	})
}

// handleRefresh handles POST /api/auth/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := orchestrators.ExecuteRefresh(r.Context(), orchestrators.RefreshInput{RefreshToken: req.RefreshToken}, orchestrators.RefreshDeps{
		MemberStore: s.deps.Stores.Members,
		Tokens:      s.deps.Tokens,
		Now:         s.deps.Now,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": res.AccessToken,
		"expires_at":   res.ExpiresAt.Unix(),
	})
}

// handleGetMe handles GET /api/me
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	m, err := projections.QueryMemberDetail(r.Context(), projections.MemberDetailQuery{
		MemberID:      p.MemberID,
		ViewerID:      p.MemberID,
		ViewerIsAdmin: p.IsAdmin(),
	}, s.directoryDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memberView(m))
}

// profileRequest is the member-editable part of a profile. Absent fields
// are left unchanged.
type profileRequest struct {
	FirstName *string      `json:"first_name"`
	LastName  *string      `json:"last_name"`
	Phone     *string      `json:"phone"`
	Address   *string      `json:"address"`
	Birthday  *string      `json:"birthday"`
	Privacy   *privacyJSON `json:"privacy"`
}

func (p profileRequest) changes() (orchestrators.ProfileChanges, error) {
	birthday, err := parseTimePtr("birthday", p.Birthday)
	if err != nil {
		return orchestrators.ProfileChanges{}, err
	}
	c := orchestrators.ProfileChanges{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Phone:     p.Phone,
		Address:   p.Address,
		Birthday:  birthday,
	}
	if p.Privacy != nil {
		priv := p.Privacy.toDomain()
		c.Privacy = &priv
	}
	return c, nil
}

func (s *Server) updateMemberDeps() orchestrators.UpdateMemberDeps {
	return orchestrators.UpdateMemberDeps{
		MemberStore: s.deps.Stores.Members,
		Auditor:     s.deps.Auditor,
		Now:         s.deps.Now,
		Log:         s.log,
	}
}

// handleUpdateMe handles PATCH /api/me
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	changes, err := req.changes()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := orchestrators.ExecuteUpdateProfile(r.Context(), orchestrators.UpdateProfileInput{
		Actor:   actor(r),
		Changes: changes,
	}, s.updateMemberDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memberView(m.VisibleTo(m.ID, false)))
}

// handleChangePassword handles PUT /api/me/password
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := orchestrators.ExecuteChangePassword(r.Context(), orchestrators.ChangePasswordInput{
		Actor:           actor(r),
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	}, orchestrators.ChangePasswordDeps{
		MemberStore: s.deps.Stores.Members,
		Auditor:     s.deps.Auditor,
		Now:         s.deps.Now,
		Log:         s.log,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
