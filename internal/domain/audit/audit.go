package audit

import (
	"time"

	"github.com/google/uuid"

	"fellowship/internal/domain/apperr"
)

// Category groups entries by the kind of resource acted upon.
type Category string

const (
	CategoryMember       Category = "member"
	CategoryEvent        Category = "event"
	CategoryAnnouncement Category = "announcement"
	CategoryMessage      Category = "message"
	CategorySecurity     Category = "security"
	CategorySystem       Category = "system"
)

// Action names what happened.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionDeactivate Action = "deactivate"
	ActionReactivate Action = "reactivate"
	ActionRoleChange Action = "role_change"
	ActionPublish    Action = "publish"
	ActionCancel     Action = "cancel"
	ActionLock       Action = "lock"
	ActionExport     Action = "export"
	ActionSeed       Action = "seed"
)

// Severity represents the severity level of an entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var (
	ErrActorRequired   = apperr.Validation("audit entry requires an actor")
	ErrInvalidCategory = apperr.Validation("audit category is not recognised")
	ErrActionRequired  = apperr.Validation("audit entry requires an action")
	ErrUnknownActor    = apperr.Validation("audit actor does not reference an existing member")
	ErrImmutable       = apperr.Forbidden("audit entries cannot be modified or deleted")
	ErrNotFound        = apperr.NotFound("audit entry not found")
)

// Actor identifies the member who performed an action.
type Actor struct {
	ID    string
	Email string
	Role  string
}

// Entry is a single immutable audit log record.
type Entry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Category     Category       `json:"category"`
	Action       Action         `json:"action"`
	Severity     Severity       `json:"severity"`
	ActorID      string         `json:"actor_id"`
	ActorEmail   string         `json:"actor_email"`
	ActorRole    string         `json:"actor_role"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Description  string         `json:"description,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewEntry starts an info-level entry for actor at now.
// PRE: actor.ID is non-empty
// POST: Returns an Entry with a fresh ID and the given timestamp
func NewEntry(actor Actor, category Category, action Action, now time.Time) Entry {
	return Entry{
		ID:         uuid.NewString(),
		Timestamp:  now.UTC(),
		Category:   category,
		Action:     action,
		Severity:   SeverityInfo,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		ActorRole:  actor.Role,
	}
}

// WithSeverity sets the severity level.
func (e Entry) WithSeverity(s Severity) Entry {
	e.Severity = s
	return e
}

// WithResource sets resource information.
func (e Entry) WithResource(resourceType, resourceID string) Entry {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithDescription sets the entry description.
func (e Entry) WithDescription(desc string) Entry {
	e.Description = desc
	return e
}

// WithRequest sets IP address and user agent from the originating request.
func (e Entry) WithRequest(ipAddress, userAgent string) Entry {
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// WithMetadata adds a key to the entry's metadata. The receiver's map is
// copied so entries built from a shared base stay independent.
func (e Entry) WithMetadata(key string, value any) Entry {
	md := make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}

// Validate checks the entry before it is appended.
// POST: Returns nil if the entry can be stored
func (e *Entry) Validate() error {
	if e.ActorID == "" {
		return ErrActorRequired
	}
	if e.Action == "" {
		return ErrActionRequired
	}
	switch e.Category {
	case CategoryMember, CategoryEvent, CategoryAnnouncement, CategoryMessage, CategorySecurity, CategorySystem:
	default:
		return ErrInvalidCategory
	}
	switch e.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		e.Severity = SeverityInfo
	}
	return nil
}
