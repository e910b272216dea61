package alert

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"fimon/config"
	"fimon/logger"

	"github.com/wneessen/go-mail"
)

// EmailNotifier sends the rendered message through an SMTP relay.
type EmailNotifier struct {
	cfg     config.EmailConfig
	timeout time.Duration
}

func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EmailNotifier{cfg: cfg, timeout: timeout}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	cfg := e.cfg
	if !cfg.Configured() {
		logger.Warn("Missing email settings; set EMAIL_SENDER, EMAIL_RECEIVER, EMAIL_PASSWORD and SMTP_SERVER")
		return ErrNotConfigured
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := net.JoinHostPort(cfg.SMTPServer, strconv.Itoa(port))

	m, err := buildMail(cfg, msg)
	if err != nil {
		return err
	}
	policy := mail.NoTLS
	if cfg.UseTLS {
		policy = mail.TLSMandatory
	}
	client, err := mail.NewClient(cfg.SMTPServer,
		mail.WithPort(port),
		mail.WithTimeout(e.timeout),
		mail.WithTLSPolicy(policy),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Sender),
		mail.WithPassword(cfg.Password),
		mail.WithDialContextFunc(e.dial),
	)
	if err != nil {
		return fmt.Errorf("smtp client for %s: %w", addr, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send email via %s: %w", addr, err)
	}
	logger.Infof("Email alert sent to %s", cfg.Receiver)
	return nil
}

// dial bounds the whole SMTP session, greeting included, by the timeout.
func (e *EmailNotifier) dial(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(time.Now().Add(e.timeout)); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func buildMail(cfg config.EmailConfig, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(cfg.Sender); err != nil {
		return nil, fmt.Errorf("email sender %q: %w", cfg.Sender, err)
	}
	if err := m.To(splitAddresses(cfg.Receiver)...); err != nil {
		return nil, fmt.Errorf("email receiver %q: %w", cfg.Receiver, err)
	}
	m.Subject(mailSubject(cfg.Subject, msg.Subject))
	if msg.At.IsZero() {
		m.SetDate()
	} else {
		m.SetDateWithValue(msg.At)
	}
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func mailSubject(prefix, subject string) string {
	subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(subject)
	if prefix != "" && !strings.HasPrefix(subject, prefix) {
		subject = prefix + " - " + subject
	}
	return subject
}

func splitAddresses(v string) []string {
	var out []string
	for _, a := range strings.Split(v, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
