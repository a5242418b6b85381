package projections

import (
	"context"

	"fellowship/internal/domain/message"
)

// Mailbox folders.
const (
	FolderInbox = "inbox"
	FolderSent  = "sent"
)

// MailboxQuery selects one folder for a member.
type MailboxQuery struct {
	MemberID string
	Folder   string
	Page     Page
}

// MailboxResult is one page of a folder plus the member's unread count.
type MailboxResult struct {
	Messages []message.Message
	Total    int64
	Unread   int64
}

// MailboxDeps holds dependencies for QueryMailbox.
type MailboxDeps struct {
	MessageStore MessageStore
}

// QueryMailbox lists a member's inbox or sent messages, newest first.
func QueryMailbox(ctx context.Context, query MailboxQuery, deps MailboxDeps) (MailboxResult, error) {
	page := query.Page.normalize()
	list := deps.MessageStore.ListInbox
	if query.Folder == FolderSent {
		list = deps.MessageStore.ListSent
	}
	msgs, total, err := list(ctx, query.MemberID, page.Limit, page.Offset)
	if err != nil {
		return MailboxResult{}, err
	}
	unread, err := deps.MessageStore.CountUnread(ctx, query.MemberID)
	if err != nil {
		return MailboxResult{}, err
	}
	return MailboxResult{Messages: msgs, Total: total, Unread: unread}, nil
}
