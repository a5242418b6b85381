package projections

import (
	"context"

	memberStore "fellowship/internal/adapters/storage/member"
	"fellowship/internal/domain/member"
)

// MemberDirectoryQuery carries directory filters and the viewer.
type MemberDirectoryQuery struct {
	ViewerID      string
	ViewerIsAdmin bool
	Search        string
	Role          string
	Status        string // honoured for admins only
	Sort          string
	Dir           string
	Page          Page
}

// MemberDirectoryResult is one page of the directory.
type MemberDirectoryResult struct {
	Members []member.Member
	Total   int64
	Limit   int
	Offset  int
}

// MemberDirectoryDeps holds dependencies for the directory projections.
type MemberDirectoryDeps struct {
	MemberStore MemberStore
}

// QueryMemberDirectory lists members as the viewer may see them.
// PRE: ViewerID is the authenticated member
// POST: non-admins see active members only, with hidden fields blanked
// INVARIANT: password hashes and lockout state never leave this function
func QueryMemberDirectory(ctx context.Context, query MemberDirectoryQuery, deps MemberDirectoryDeps) (MemberDirectoryResult, error) {
	page := query.Page.normalize()
	filter := memberStore.ListFilter{
		Limit:  page.Limit,
		Offset: page.Offset,
		Role:   query.Role,
		Search: query.Search,
		Sort:   query.Sort,
		Dir:    query.Dir,
		Status: member.StatusActive,
	}
	if query.ViewerIsAdmin {
		filter.Status = query.Status
	}

	members, total, err := deps.MemberStore.List(ctx, filter)
	if err != nil {
		return MemberDirectoryResult{}, err
	}
	out := make([]member.Member, 0, len(members))
	for _, m := range members {
		out = append(out, m.VisibleTo(query.ViewerID, query.ViewerIsAdmin))
	}
	return MemberDirectoryResult{Members: out, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// MemberDetailQuery names the member to show and who is looking.
type MemberDetailQuery struct {
	MemberID      string
	ViewerID      string
	ViewerIsAdmin bool
}

// QueryMemberDetail returns one member as the viewer may see them.
// POST: members who are not active are not found for non-admin viewers
// other than themselves
func QueryMemberDetail(ctx context.Context, query MemberDetailQuery, deps MemberDirectoryDeps) (member.Member, error) {
	m, err := deps.MemberStore.GetByID(ctx, query.MemberID)
	if err != nil {
		return member.Member{}, err
	}
	if !m.IsActive() && !query.ViewerIsAdmin && query.ViewerID != m.ID {
		return member.Member{}, member.ErrNotFound
	}
	return m.VisibleTo(query.ViewerID, query.ViewerIsAdmin), nil
}
