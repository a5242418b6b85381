package projections

import (
	"bytes"
	"context"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	announcementStore "fellowship/internal/adapters/storage/announcement"
	"fellowship/internal/domain/announcement"
)

// AnnouncementItem is an announcement with its rendered body and whether the
// viewer has read it.
type AnnouncementItem struct {
	announcement.Announcement
	HTML string
	Read bool
}

// AnnouncementFeedQuery selects the feed for a member.
type AnnouncementFeedQuery struct {
	MemberID      string
	ViewerIsAdmin bool
	Status        string // admins may ask for drafts; empty means visible now
	Page          Page
}

// AnnouncementFeedResult is one page of the feed.
type AnnouncementFeedResult struct {
	Items  []AnnouncementItem
	Total  int64
	Unread int64 // across every announcement visible to the member, not just this page
}

// AnnouncementFeedDeps holds dependencies for the feed projections.
type AnnouncementFeedDeps struct {
	AnnouncementStore AnnouncementStore
	ViewStore         ViewStore
	Markdown          goldmark.Markdown // nil uses NewMarkdown
}

// NewMarkdown returns the renderer used for announcement bodies.
// Raw HTML in the source is omitted (WithUnsafe is not set).
func NewMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
		goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
	)
}

func (d AnnouncementFeedDeps) markdown() goldmark.Markdown {
	if d.Markdown != nil {
		return d.Markdown
	}
	return NewMarkdown()
}

// QueryAnnouncementFeed lists announcements visible at now, pinned and
// urgent first, each flagged read or unread for the member. The store
// orders the whole feed, so pages never reorder against each other.
// PRE: MemberID is the authenticated member
// POST: non-admins only ever see announcements visible at now
func QueryAnnouncementFeed(ctx context.Context, query AnnouncementFeedQuery, deps AnnouncementFeedDeps, now time.Time) (AnnouncementFeedResult, error) {
	page := query.Page.normalize()
	filter := announcementStore.ListFilter{VisibleAt: now, Limit: page.Limit, Offset: page.Offset}
	if query.ViewerIsAdmin && query.Status != "" {
		filter = announcementStore.ListFilter{Status: query.Status, Limit: page.Limit, Offset: page.Offset}
	}

	list, total, err := deps.AnnouncementStore.List(ctx, filter)
	if err != nil {
		return AnnouncementFeedResult{}, err
	}
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	viewed, err := deps.ViewStore.ViewedIDs(ctx, query.MemberID, ids)
	if err != nil {
		return AnnouncementFeedResult{}, err
	}

	unread, err := deps.ViewStore.CountUnread(ctx, query.MemberID, now)
	if err != nil {
		return AnnouncementFeedResult{}, err
	}

	md := deps.markdown()
	result := AnnouncementFeedResult{Items: make([]AnnouncementItem, 0, len(list)), Total: total, Unread: unread}
	for _, a := range list {
		html, err := renderMarkdown(md, a.Body)
		if err != nil {
			return AnnouncementFeedResult{}, err
		}
		result.Items = append(result.Items, AnnouncementItem{Announcement: a, HTML: html, Read: viewed[a.ID]})
	}
	return result, nil
}

// AnnouncementDetailQuery names one announcement.
type AnnouncementDetailQuery struct {
	AnnouncementID string
	MemberID       string
	ViewerIsAdmin  bool
}

// QueryAnnouncementDetail returns one announcement rendered for the member.
// POST: drafts and expired announcements are not found for non-admins
func QueryAnnouncementDetail(ctx context.Context, query AnnouncementDetailQuery, deps AnnouncementFeedDeps, now time.Time) (AnnouncementItem, error) {
	a, err := deps.AnnouncementStore.GetByID(ctx, query.AnnouncementID)
	if err != nil {
		return AnnouncementItem{}, err
	}
	if !query.ViewerIsAdmin && !a.IsVisible(now) {
		return AnnouncementItem{}, announcement.ErrNotFound
	}
	read, err := deps.ViewStore.Exists(ctx, a.ID, query.MemberID)
	if err != nil {
		return AnnouncementItem{}, err
	}
	html, err := renderMarkdown(deps.markdown(), a.Body)
	if err != nil {
		return AnnouncementItem{}, err
	}
	return AnnouncementItem{Announcement: a, HTML: html, Read: read}, nil
}

func renderMarkdown(md goldmark.Markdown, src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
