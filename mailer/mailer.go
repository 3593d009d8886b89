// Package mailer renders and delivers the transactional emails of the API.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-errors/errors"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	subjectWelcome       = "Welcome to the Natours Family!"
	subjectPasswordReset = "Your password reset token (valid for only %s)"
)

var templates = map[string]*template.Template{
	"welcome":        template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/welcome.html")),
	"password_reset": template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/password_reset.html")),
}

type Recipient struct {
	Email string
	Name  string
}

func (r Recipient) FirstName() string {
	first, _, _ := strings.Cut(strings.TrimSpace(r.Name), " ")
	if first == "" {
		return "there"
	}
	return first
}

// Message is a rendered email ready to be delivered.
type Message struct {
	To      Recipient
	Subject string
	HTML    string
	Text    string
}

// Sender sends the emails the API needs.
type Sender interface {
	SendWelcome(ctx context.Context, to Recipient, url string) error
	SendPasswordReset(ctx context.Context, to Recipient, resetURL string, validFor time.Duration) error
}

// Transport delivers rendered messages.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Mailer renders messages and hands them to its transport.
type Mailer struct {
	transport Transport
}

func New(transport Transport) *Mailer {
	return &Mailer{transport: transport}
}

type templateData struct {
	Subject   string
	FirstName string
	URL       string
	ValidFor  string
}

func (m *Mailer) SendWelcome(ctx context.Context, to Recipient, url string) error {
	data := templateData{Subject: subjectWelcome, FirstName: to.FirstName(), URL: url}
	text := fmt.Sprintf("Hi %s,\n\nWelcome to Natours, we're glad to have you!\nUpload your user photo here: %s\n", data.FirstName, url)
	return m.send(ctx, to, "welcome", data, text)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to Recipient, resetURL string, validFor time.Duration) error {
	validText := humanizeDuration(validFor)
	data := templateData{
		Subject:   fmt.Sprintf(subjectPasswordReset, validText),
		FirstName: to.FirstName(),
		URL:       resetURL,
		ValidFor:  validText,
	}
	text := fmt.Sprintf("Hi %s,\n\nForgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s\nIf you didn't forget your password, please ignore this email!\n", data.FirstName, resetURL)
	return m.send(ctx, to, "password_reset", data, text)
}

func (m *Mailer) send(ctx context.Context, to Recipient, name string, data templateData, text string) error {
	var buf bytes.Buffer
	if err := templates[name].ExecuteTemplate(&buf, "base", data); err != nil {
		return errors.WrapPrefix(err, "render "+name+" email", 0)
	}

	return m.transport.Deliver(ctx, Message{
		To:      to,
		Subject: data.Subject,
		HTML:    buf.String(),
		Text:    text,
	})
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	}
	return d.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
