// Package notify mails folder delete task reports.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"

	"BucketDash/model"

	"github.com/jordan-wright/email"
)

// Mailer sends a report for a finished folder delete task.
type Mailer interface {
	SendFolderDeleteReport(ctx context.Context, to string, task *model.FolderDeleteTask) error
}

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Pass     string
	From     string
	TLS      bool
	StartTLS bool
}

// SMTPMailer sends mail through one SMTP server.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(e *email.Email) error
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port == "" || cfg.From == "" {
		return nil, errors.New("smtp config missing")
	}
	m := &SMTPMailer{cfg: cfg}
	m.send = m.deliver
	return m, nil
}

func (m *SMTPMailer) SendFolderDeleteReport(ctx context.Context, to string, task *model.FolderDeleteTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := buildReport(m.cfg.From, to, task)
	if err != nil {
		return err
	}
	return m.send(e)
}

func (m *SMTPMailer) deliver(e *email.Email) error {
	addr := m.cfg.Host + ":" + m.cfg.Port
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	}
	tlsConfig := &tls.Config{ServerName: m.cfg.Host}
	if m.cfg.TLS || m.cfg.Port == "465" {
		return e.SendWithTLS(addr, auth, tlsConfig)
	}
	if m.cfg.StartTLS {
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}

var reportTemplate = template.Must(template.New("report").Parse(`
<h2>Folder delete {{.Status}}</h2>
<p>Prefix: <code>{{.Prefix}}</code> (task {{.ID}}, requested by {{.ActorID}})</p>
<ul>
  <li>Pages: {{.Pages}}</li>
  <li>Objects deleted: {{.ObjectsDeleted}}</li>
  <li>Objects failed: {{.ObjectsFailed}}</li>
  <li>Rows deleted: {{.RowsDeleted}}</li>
  <li>Batches failed: {{.BatchesFailed}}</li>
</ul>
{{if .ErrorMsg}}<p>Last error: {{.ErrorMsg}}</p>{{end}}
`))

func buildReport(from, to string, task *model.FolderDeleteTask) (*email.Email, error) {
	var body bytes.Buffer
	if err := reportTemplate.Execute(&body, task); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	e := email.NewEmail()
	e.From = from
	e.To = []string{to}
	e.Subject = fmt.Sprintf("Folder delete %s: %s", task.Status, task.Prefix)
	e.HTML = body.Bytes()
	return e, nil
}

// NopMailer drops every report.
type NopMailer struct{}

func (NopMailer) SendFolderDeleteReport(context.Context, string, *model.FolderDeleteTask) error {
	return nil
}
