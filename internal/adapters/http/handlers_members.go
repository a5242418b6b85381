package web

import (
	"net/http"

	"fellowship/internal/application/listutil"
	"fellowship/internal/application/orchestrators"
	"fellowship/internal/application/projections"
	"fellowship/internal/domain/member"
)

var (
	memberSortColumns = []string{"first_name", "last_name", "email", "membership_date", "created_at"}
	memberFilterKeys  = []string{"role", "status"}
)

func (s *Server) directoryDeps() projections.MemberDirectoryDeps {
	return projections.MemberDirectoryDeps{MemberStore: s.deps.Stores.Members}
}

// handleListMembers handles GET /api/members
// POST: non-admins see active members with privacy applied
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	lp := listutil.ParseListParams(r.URL.Query(), memberSortColumns, memberFilterKeys)
	res, err := projections.QueryMemberDirectory(r.Context(), projections.MemberDirectoryQuery{
		ViewerID:      p.MemberID,
		ViewerIsAdmin: p.IsAdmin(),
		Search:        lp.Search,
		Role:          lp.Get("role"),
		Status:        lp.Get("status"),
		Sort:          lp.Sort,
		Dir:           lp.Dir,
		Page:          projections.Page{Limit: lp.Limit, Offset: lp.Offset},
	}, s.directoryDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"members": memberViews(res.Members),
		"total":   res.Total,
		"limit":   res.Limit,
		"offset":  res.Offset,
	})
}

// handleGetMember handles GET /api/members/{id}
func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	m, err := projections.QueryMemberDetail(r.Context(), projections.MemberDetailQuery{
		MemberID:      r.PathValue("id"),
		ViewerID:      p.MemberID,
		ViewerIsAdmin: p.IsAdmin(),
	}, s.directoryDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memberView(m))
}

type createMemberRequest struct {
	Email          string       `json:"email"`
	FirstName      string       `json:"first_name"`
	LastName       string       `json:"last_name"`
	Phone          string       `json:"phone"`
	Address        string       `json:"address"`
	Birthday       *string      `json:"birthday"`
	Role           string       `json:"role"`
	MembershipDate *string      `json:"membership_date"`
	Privacy        *privacyJSON `json:"privacy"`
	Password       string       `json:"password"`
}

// handleCreateMember handles POST /api/members
// PRE: caller is an admin
func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	birthday, err := parseTimePtr("birthday", req.Birthday)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	since, err := parseTimePtr("membership_date", req.MembershipDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	input := orchestrators.CreateMemberInput{
		Actor:          actor(r),
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		Address:        req.Address,
		Birthday:       birthday,
		Role:           req.Role,
		MembershipDate: since,
		Password:       req.Password,
	}
	if req.Privacy != nil {
		priv := req.Privacy.toDomain()
		input.Privacy = &priv
	}
	m, err := orchestrators.ExecuteCreateMember(r.Context(), input, orchestrators.CreateMemberDeps{
		MemberStore: s.deps.Stores.Members,
		Auditor:     s.deps.Auditor,
		GenerateID:  s.deps.GenerateID,
		Now:         s.deps.Now,
		Log:         s.log,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, memberView(m.VisibleTo("", true)))
}

// handleUpdateMember handles PATCH /api/members/{id}
// PRE: caller is an admin
func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		profileRequest
		Email  *string `json:"email"`
		Role   *string `json:"role"`
		Status *string `json:"status"`
	}
	if err := strictDecode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	changes, err := req.changes()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := orchestrators.ExecuteUpdateMember(r.Context(), orchestrators.UpdateMemberInput{
		Actor:    actor(r),
		MemberID: r.PathValue("id"),
		Changes:  changes,
		Email:    req.Email,
		Role:     req.Role,
		Status:   req.Status,
	}, s.updateMemberDeps())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memberView(m.VisibleTo("", true)))
}

func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request,
	exec func(*http.Request, orchestrators.MemberLifecycleInput, orchestrators.MemberLifecycleDeps) (member.Member, error),
) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := strictDecode(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	m, err := exec(r, orchestrators.MemberLifecycleInput{
		Actor:    actor(r),
		MemberID: r.PathValue("id"),
		Reason:   req.Reason,
	}, orchestrators.MemberLifecycleDeps{
		MemberStore: s.deps.Stores.Members,
		Auditor:     s.deps.Auditor,
		Now:         s.deps.Now,
		Log:         s.log,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memberView(m.VisibleTo("", true)))
}

// handleDeactivateMember handles POST /api/members/{id}/deactivate
// POST: the member is soft-deactivated; nothing is deleted
func (s *Server) handleDeactivateMember(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, func(r *http.Request, in orchestrators.MemberLifecycleInput, d orchestrators.MemberLifecycleDeps) (member.Member, error) {
		return orchestrators.ExecuteDeactivateMember(r.Context(), in, d)
	})
}

// handleReactivateMember handles POST /api/members/{id}/reactivate
func (s *Server) handleReactivateMember(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, func(r *http.Request, in orchestrators.MemberLifecycleInput, d orchestrators.MemberLifecycleDeps) (member.Member, error) {
		return orchestrators.ExecuteReactivateMember(r.Context(), in, d)
	})
}
