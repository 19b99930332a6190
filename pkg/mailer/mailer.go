package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/imobcrm/crm-backend/pkg/config"
	"gopkg.in/gomail.v2"
)

// FollowUp is one line of a reminder digest.
type FollowUp struct {
	ClientName string
	Phone      string
	Status     string
	DueAt      time.Time
}

// Digest is the reminder email sent to one broker.
type Digest struct {
	To        string
	Name      string
	FollowUps []FollowUp
}

// Sender delivers reminder digests.
type Sender interface {
	SendFollowUpDigest(ctx context.Context, digest Digest) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends mail through the configured relay.
type SMTPSender struct {
	from   string
	dialer dialer
	loc    *time.Location
}

var digestTemplate = template.Must(template.New("digest").Parse(`<p>Olá, {{.Name}}!</p>
<p>Você tem {{len .FollowUps}} retorno(s) agendado(s):</p>
<ul>
{{- range .FollowUps}}
<li><strong>{{.ClientName}}</strong>{{if .Phone}} ({{.Phone}}){{end}} · {{.Status}} · {{.DueAt.Format "02/01/2006 15:04"}}</li>
{{- end}}
</ul>`))

// NewSMTPSender builds a sender from config. Times are rendered in loc.
func NewSMTPSender(cfg config.SMTPConfig, loc *time.Location) (*SMTPSender, error) {
	if !cfg.Enabled() {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SMTPSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		loc:    loc,
	}, nil
}

func (s *SMTPSender) SendFollowUpDigest(ctx context.Context, digest Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(digest.To) == "" {
		return errors.New("digest recipient is required")
	}
	if len(digest.FollowUps) == 0 {
		return nil
	}

	body, err := s.render(digest)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", digest.To)
	m.SetHeader("Subject", fmt.Sprintf("Retornos agendados: %d cliente(s)", len(digest.FollowUps)))
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send follow-up digest: %w", err)
	}
	return nil
}

func (s *SMTPSender) render(digest Digest) (string, error) {
	local := digest
	local.FollowUps = make([]FollowUp, len(digest.FollowUps))
	for i, f := range digest.FollowUps {
		f.DueAt = f.DueAt.In(s.loc)
		local.FollowUps[i] = f
	}

	var body bytes.Buffer
	if err := digestTemplate.Execute(&body, local); err != nil {
		return "", fmt.Errorf("render follow-up digest: %w", err)
	}
	return body.String(), nil
}
