package orchestrators

import (
	"context"
	"time"

	"go.uber.org/zap"

	memberStore "fellowship/internal/adapters/storage/member"
	"fellowship/internal/application/notify"
	"fellowship/internal/domain/audit"
	"fellowship/internal/domain/member"
)

// Actor is the authenticated member performing a command, plus the request
// details recorded in the audit log.
type Actor struct {
	ID        string
	Email     string
	Role      string
	IPAddress string
	UserAgent string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == member.RoleAdmin
}

// entry starts an audit entry attributed to the actor.
func (a Actor) entry(category audit.Category, action audit.Action, now time.Time) audit.Entry {
	return audit.NewEntry(audit.Actor{ID: a.ID, Email: a.Email, Role: a.Role}, category, action, now).
		WithRequest(a.IPAddress, a.UserAgent)
}

// actorFor builds an Actor for a member acting on their own account.
func actorFor(m member.Member, ip, userAgent string) Actor {
	return Actor{ID: m.ID, Email: m.Email, Role: m.Role, IPAddress: ip, UserAgent: userAgent}
}

// AuditAppender is the part of audit.Store commands write to.
type AuditAppender interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// AuditMirror receives a copy of every stored entry.
type AuditMirror interface {
	Publish(ctx context.Context, entry audit.Entry) (string, error)
}

// Auditor records audit entries after a command has committed. Failures are
// logged and never undo the command. A nil *Auditor records nothing.
type Auditor struct {
	Store  AuditAppender
	Mirror AuditMirror
	Log    *zap.SugaredLogger

	// OnMirrorFailure is called when the mirror rejects an entry. Optional.
	OnMirrorFailure func()
}

// auditTimeout bounds one Record call once it is detached from the request.
const auditTimeout = 10 * time.Second

// Record appends e and mirrors it when a mirror is configured. The command
// has already committed, so the write outlives a cancelled request context.
func (a *Auditor) Record(ctx context.Context, e audit.Entry) {
	if a == nil || a.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := a.Store.Append(ctx, e); err != nil {
		a.Log.Errorw("audit_event", "event", "append_failed", "action", e.Action, "resource_id", e.ResourceID, "error", err)
		return
	}
	if a.Mirror == nil {
		return
	}
	if _, err := a.Mirror.Publish(ctx, e); err != nil {
		a.Log.Warnw("audit_event", "event", "mirror_failed", "audit_id", e.ID, "error", err)
		if a.OnMirrorFailure != nil {
			a.OnMirrorFailure()
		}
	}
}

// Notifier queues background notifications.
type Notifier interface {
	Enqueue(job notify.Job) bool
}

// notifyMembers queues a job when a notifier is configured.
func notifyMembers(n Notifier, job notify.Job) {
	if n == nil || (len(job.MemberIDs) == 0 && job.Email == nil) {
		return
	}
	n.Enqueue(job)
}

// MemberLister is the part of member.Store used to find notification targets.
type MemberLister interface {
	List(ctx context.Context, filter memberStore.ListFilter) ([]member.Member, int64, error)
}

// maxBroadcast bounds how many members one broadcast notification reaches.
const maxBroadcast = 10000

// activeMemberIDs returns the IDs of active members other than exclude.
func activeMemberIDs(ctx context.Context, members MemberLister, exclude string) ([]string, error) {
	list, _, err := members.List(ctx, memberStore.ListFilter{Status: member.StatusActive, Limit: maxBroadcast})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, m := range list {
		if m.ID != exclude {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}
