package email

import (
	"bytes"
	"html/template"
	"time"
)

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html><body style="font-family:sans-serif;max-width:560px;margin:0 auto">
<h2>{{.Heading}}</h2>
{{range .Lines}}<p>{{.}}</p>
{{end}}{{if .Link}}<p><a href="{{.Link}}">{{.LinkText}}</a></p>{{end}}
<hr><p style="color:#777;font-size:12px">You are receiving this because you are a member of the fellowship.</p>
</body></html>`))

type page struct {
	Heading  string
	Lines    []string
	Link     string
	LinkText string
}

func render(p page) (string, error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// NewMessageNotice tells a member that someone has written to them. The
// message body itself is not included.
func NewMessageNotice(to, senderName, subject, baseURL string) (SendRequest, error) {
	if subject == "" {
		subject = "(no subject)"
	}
	html, err := render(page{
		Heading:  "You have a new message",
		Lines:    []string{senderName + " sent you a message: " + subject},
		Link:     baseURL + "/messages",
		LinkText: "Open your inbox",
	})
	if err != nil {
		return SendRequest{}, err
	}
	return SendRequest{
		To:       []string{to},
		Subject:  "New message from " + senderName,
		HTML:     html,
		Text:     senderName + " sent you a message: " + subject + "\n\n" + baseURL + "/messages",
		Category: CategoryMessageNotice,
	}, nil
}

// NewEventReminder reminds an attending member of an upcoming event.
func NewEventReminder(to, title, location string, startsAt time.Time, eventURL string) (SendRequest, error) {
	when := startsAt.Format("Monday 2 January, 3:04 PM")
	lines := []string{title + " starts " + when + "."}
	if location != "" {
		lines = append(lines, "Location: "+location)
	}
	html, err := render(page{Heading: "Event reminder", Lines: lines, Link: eventURL, LinkText: "View event"})
	if err != nil {
		return SendRequest{}, err
	}
	return SendRequest{
		To:       []string{to},
		Subject:  "Reminder: " + title,
		HTML:     html,
		Text:     lines[0] + "\n\n" + eventURL,
		Category: CategoryEventReminder,
	}, nil
}
