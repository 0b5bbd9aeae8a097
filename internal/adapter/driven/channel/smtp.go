package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ChannelSender = (*SMTPSender)(nil)

// SMTPConfig holds the relay settings for email delivery.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers email through an SMTP relay. The relay connection is
// upgraded with STARTTLS whenever the server offers it.
type SMTPSender struct {
	cfg      SMTPConfig
	auth     smtp.Auth
	sendMail sendMailFunc
	now      func() time.Time
}

// NewSMTPSender creates an SMTPSender. Authentication is skipped when no
// username is configured.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		cfg:      cfg,
		auth:     auth,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

// Send builds a multipart/alternative message and hands it to the relay.
// 5xx replies are permanent; anything else is worth retrying.
func (s *SMTPSender) Send(ctx context.Context, msg driven.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := s.buildMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("build email for job %s: %w", msg.JobID, err)
	}

	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, s.auth, s.cfg.From, []string{msg.Recipient}, raw); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return fmt.Errorf("smtp rejected %s: %w: %w", msg.Recipient, driven.ErrPermanent, err)
		}
		return fmt.Errorf("smtp send to %s: %w", msg.Recipient, err)
	}
	return nil
}

func (s *SMTPSender) buildMessage(ctx context.Context, msg driven.Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := writeQuotedPart(mw, "text/plain; charset=utf-8", []byte(PlainText(msg.Body))); err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if isDocument(msg.Body) {
		html.WriteString(msg.Body)
	} else if err := emailLayout(msg.Subject, msg.Body).Render(ctx, &html); err != nil {
		return nil, fmt.Errorf("render layout: %w", err)
	}
	if err := writeQuotedPart(mw, "text/html; charset=utf-8", html.Bytes()); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	header := []struct{ key, value string }{
		{"From", s.cfg.From},
		{"To", msg.Recipient},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Date", s.now().Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@notipi>", msg.JobID)},
		{"MIME-Version", "1.0"},
		{"Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary())},
	}
	for _, h := range header {
		fmt.Fprintf(&out, "%s: %s\r\n", h.key, h.value)
	}
	out.WriteString("\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// isDocument reports whether body is already a full HTML document rather
// than a fragment needing the layout.
func isDocument(body string) bool {
	head := strings.ToLower(strings.TrimSpace(body))
	return strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html")
}

func writeQuotedPart(mw *multipart.Writer, contentType string, content []byte) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write(content); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return qp.Close()
}
