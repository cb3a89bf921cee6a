// Package notify delivers recording lifecycle notifications by webhook,
// email and an append-only event log.
package notify

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/oszuidwest/zwfm-capture/internal/util"
)

const defaultFromName = "ZuidWest FM Capture"

// EmailConfig contains SMTP server settings for email notifications.
type EmailConfig struct {
	Host       string
	Port       int
	FromName   string
	Username   string
	Password   string
	Recipients string
}

// check reports the first missing setting needed to send mail.
func (c *EmailConfig) check() error {
	for _, f := range []struct{ name, value string }{
		{"SMTP host", c.Host},
		{"email username", c.Username},
		{"email recipients", c.Recipients},
	} {
		if err := util.ValidateRequired(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// SendFailureAlert emails an alert about a recording that went wrong. It is a
// no-op when email is not configured.
func SendFailureAlert(cfg *EmailConfig, p Payload) error {
	if cfg.check() != nil {
		return nil
	}
	return sendEmail(cfg, "[ALERT] Recording problem",
		fmt.Sprintf("Event:   %s\nSession: %s\nFile:    %s\nError:   %s\nTime:    %s\n\nThe recording may be incomplete.",
			p.Event, p.SessionID, p.Path, p.Error, util.FormatHumanTime(p.Timestamp)))
}

// SendTestEmail sends a test message to verify the SMTP settings.
func SendTestEmail(cfg *EmailConfig) error {
	if err := cfg.check(); err != nil {
		return err
	}
	return sendEmail(cfg, "[TEST] Recorder email",
		fmt.Sprintf("SMTP settings work. Sent %s.", util.HumanTime()))
}

// ParseRecipients splits a comma-separated recipient list.
func ParseRecipients(list string) []string {
	var recipients []string
	for r := range strings.SplitSeq(list, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}

// tlsOption picks implicit TLS on 465, mandatory STARTTLS on 587 and
// opportunistic STARTTLS elsewhere.
func tlsOption(port int) mail.Option {
	switch port {
	case 465:
		return mail.WithSSL()
	case 587:
		return mail.WithTLSPortPolicy(mail.TLSMandatory)
	}
	return mail.WithTLSPortPolicy(mail.TLSOpportunistic)
}

func sendEmail(cfg *EmailConfig, subject, body string) error {
	recipients := ParseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	m := mail.NewMsg()
	if err := m.FromFormat(cmp.Or(cfg.FromName, defaultFromName), cfg.Username); err != nil {
		return util.WrapError("set from address", err)
	}
	if err := m.To(recipients...); err != nil {
		return util.WrapError("set recipient address", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	c, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		tlsOption(cfg.Port),
	)
	if err != nil {
		return util.WrapError("create SMTP client", err)
	}
	return util.WrapError("send email", c.DialAndSend(m))
}
