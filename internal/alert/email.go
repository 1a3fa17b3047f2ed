package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/config"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email sends high-priority plain-text alerts through an SMTP relay.
type Email struct {
	addr     string
	from     string
	to       []string
	subject  string
	sendMail sendMailFunc
}

// NewEmail creates an Email alerter from cfg. Multiple recipients are
// comma-separated.
func NewEmail(cfg config.AlertConfig) *Email {
	var to []string
	for _, r := range strings.Split(cfg.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &Email{
		addr:     cfg.SMTPAddr,
		from:     cfg.From,
		to:       to,
		subject:  cfg.Subject,
		sendMail: smtp.SendMail,
	}
}

// Send implements Alerter.
func (e *Email) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "alert: email")
	}
	if len(e.to) == 0 {
		return eris.New("alert: email has no recipients")
	}

	if err := e.sendMail(e.addr, nil, e.from, e.to, e.message(a)); err != nil {
		return eris.Wrapf(err, "alert: send email via %s", e.addr)
	}
	zap.L().Info("alert: email sent",
		zap.String("type", string(a.Type)),
		zap.Strings("to", e.to),
	)
	return nil
}

func (e *Email) message(a Alert) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", e.subject)
	b.WriteString("X-Priority: 1\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"us-ascii\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(a.Message, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}
