package web

import (
	"time"

	"fellowship/internal/application/projections"
	"fellowship/internal/domain/announcement"
	"fellowship/internal/domain/event"
	"fellowship/internal/domain/member"
	"fellowship/internal/domain/message"
	"fellowship/internal/domain/push"
)

// JSON shapes of API responses. Domain types carry no JSON tags, so every
// response goes through one of these.

type privacyJSON struct {
	ShowEmail    bool `json:"show_email"`
	ShowPhone    bool `json:"show_phone"`
	ShowAddress  bool `json:"show_address"`
	ShowBirthday bool `json:"show_birthday"`
}

func (p privacyJSON) toDomain() member.Privacy {
	return member.Privacy(p)
}

type memberJSON struct {
	ID             string      `json:"id"`
	Email          string      `json:"email,omitempty"`
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	Phone          string      `json:"phone,omitempty"`
	Address        string      `json:"address,omitempty"`
	Birthday       string      `json:"birthday,omitempty"`
	Role           string      `json:"role"`
	Status         string      `json:"status"`
	MembershipDate string      `json:"membership_date"`
	Privacy        privacyJSON `json:"privacy"`
	LastLoginAt    *time.Time  `json:"last_login_at,omitempty"`
	DeactivatedAt  *time.Time  `json:"deactivated_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// memberView renders m after VisibleTo has been applied.
func memberView(m member.Member) memberJSON {
	v := memberJSON{
		ID:             m.ID,
		Email:          m.Email,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		Phone:          m.Phone,
		Address:        m.Address,
		Role:           m.Role,
		Status:         m.Status,
		MembershipDate: m.MembershipDate.Format(time.DateOnly),
		Privacy:        privacyJSON(m.Privacy),
		LastLoginAt:    m.LastLoginAt,
		DeactivatedAt:  m.DeactivatedAt,
		CreatedAt:      m.CreatedAt,
	}
	if m.Birthday != nil {
		v.Birthday = m.Birthday.Format(time.DateOnly)
	}
	return v
}

func memberViews(ms []member.Member) []memberJSON {
	out := make([]memberJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, memberView(m))
	}
	return out
}

type eventJSON struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `json:"capacity"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func eventView(e event.Event) eventJSON {
	return eventJSON{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		StartsAt:    e.StartsAt,
		EndsAt:      e.EndsAt,
		Capacity:    e.Capacity,
		Status:      e.Status,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func eventViews(es []event.Event) []eventJSON {
	out := make([]eventJSON, 0, len(es))
	for _, e := range es {
		out = append(out, eventView(e))
	}
	return out
}

type rsvpJSON struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	MemberID  string    `json:"member_id"`
	Status    string    `json:"status"`
	Guests    int       `json:"guests"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func rsvpView(r event.RSVP) rsvpJSON {
	return rsvpJSON{
		ID:        r.ID,
		EventID:   r.EventID,
		MemberID:  r.MemberID,
		Status:    r.Status,
		Guests:    r.Guests,
		Note:      r.Note,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type summaryJSON struct {
	Attending int `json:"attending"`
	Maybe     int `json:"maybe"`
	Declined  int `json:"declined"`
	Guests    int `json:"guests"`
	Headcount int `json:"headcount"`
}

type eventDetailJSON struct {
	eventJSON
	RSVPs     summaryJSON `json:"rsvps"`
	SeatsLeft *int        `json:"seats_left"`
	MyRSVP    *rsvpJSON   `json:"my_rsvp"`
}

func eventDetailView(d projections.EventDetail) eventDetailJSON {
	v := eventDetailJSON{
		eventJSON: eventView(d.Event),
		RSVPs: summaryJSON{
			Attending: d.Summary.Attending,
			Maybe:     d.Summary.Maybe,
			Declined:  d.Summary.Declined,
			Guests:    d.Summary.Guests,
			Headcount: d.Headcount,
		},
		SeatsLeft: d.SeatsLeft,
	}
	if d.MyRSVP != nil {
		mine := rsvpView(*d.MyRSVP)
		v.MyRSVP = &mine
	}
	return v
}

type announcementJSON struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	HTML        string     `json:"html,omitempty"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	Pinned      bool       `json:"pinned"`
	Read        *bool      `json:"read,omitempty"`
	CreatedBy   string     `json:"created_by"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func announcementView(a announcement.Announcement) announcementJSON {
	return announcementJSON{
		ID:          a.ID,
		Title:       a.Title,
		Body:        a.Body,
		Priority:    a.Priority,
		Status:      a.Status,
		Pinned:      a.Pinned,
		CreatedBy:   a.CreatedBy,
		PublishedAt: a.PublishedAt,
		ExpiresAt:   a.ExpiresAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func announcementItemView(item projections.AnnouncementItem) announcementJSON {
	v := announcementView(item.Announcement)
	v.HTML = item.HTML
	read := item.Read
	v.Read = &read
	return v
}

type messageJSON struct {
	ID          string     `json:"id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Subject     string     `json:"subject,omitempty"`
	Body        string     `json:"body"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func messageView(m message.Message) messageJSON {
	return messageJSON{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Subject:     m.Subject,
		Body:        m.Body,
		Read:        m.IsRead(),
		ReadAt:      m.ReadAt,
		CreatedAt:   m.CreatedAt,
	}
}

func messageViews(ms []message.Message) []messageJSON {
	out := make([]messageJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, messageView(m))
	}
	return out
}

// subscriptionJSON omits the device keys, which the server never hands back.
type subscriptionJSON struct {
	ID         string     `json:"id"`
	Endpoint   string     `json:"endpoint"`
	UserAgent  string     `json:"user_agent,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func subscriptionView(s push.Subscription) subscriptionJSON {
	return subscriptionJSON{
		ID:         s.ID,
		Endpoint:   s.Endpoint,
		UserAgent:  s.UserAgent,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.LastUsedAt,
	}
}
