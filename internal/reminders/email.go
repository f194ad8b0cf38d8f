package reminders

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"prep/internal/interview"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// EmailSink delivers one HTML email.
type EmailSink interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	if from == "" {
		from = username
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// LogSender stands in for SMTP in development; it only logs.
type LogSender struct {
	Log logrus.FieldLogger
}

func (s LogSender) Send(_ context.Context, to, subject, _ string) error {
	s.Log.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("email (smtp not configured)")
	return nil
}

var reminderTmpl = template.Must(template.New("reminder").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2>Interview Reminder</h2>
  <p>Hi <strong>{{.Name}}</strong>,</p>
  <p>Your interview with <strong>{{.Company}}</strong> for the role of <strong>{{.Role}}</strong> starts in {{.Lead}}.</p>
  <div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
    <p><strong>Date:</strong> {{.Date}}</p>
    <p><strong>Time:</strong> {{.Time}}</p>
    <p><strong>Location:</strong> {{.Location}}</p>
  </div>
  {{- if .JoinLink}}
  <p style="text-align: center; margin: 30px 0;"><a href="{{.JoinLink}}">Join Interview</a></p>
  {{- end}}
  <p style="color: #666; font-size: 14px;">You'll receive another notification shortly before the interview starts.</p>
  <p>Good luck!</p>
</div>
`))

type reminderView struct {
	Name     string
	Company  string
	Role     string
	Lead     string
	Date     string
	Time     string
	Location string
	JoinLink string
}

// RenderReminder builds the subject and HTML body of the far-advance email.
func RenderReminder(iv interview.Interview, lead time.Duration) (subject, body string, err error) {
	v := reminderView{
		Name:     iv.OwnerName,
		Company:  iv.Company,
		Role:     iv.JobRole,
		Lead:     fmt.Sprintf("%d minutes", int(lead.Round(time.Minute).Minutes())),
		Date:     iv.ScheduledDate.Format("Mon Jan 2 2006"),
		Time:     iv.ScheduledTime,
		Location: iv.Location,
		JoinLink: strings.TrimSpace(iv.JobLink),
	}
	if v.Name == "" {
		v.Name = "there"
	}
	if v.Location == "" {
		v.Location = "Online"
	}

	var buf bytes.Buffer
	if err := reminderTmpl.Execute(&buf, v); err != nil {
		return "", "", fmt.Errorf("render reminder: %w", err)
	}
	return "Interview Reminder - " + iv.Company, buf.String(), nil
}

// RenderTestEmail is the body of the configuration check email.
func RenderTestEmail() (subject, body string) {
	return "Email Test", "<h3>Email configuration is working!</h3><p>If you receive this, your email setup is correct.</p>"
}
