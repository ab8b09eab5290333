package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

const smtpDialTimeout = 30 * time.Second

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host     string // SMTP server host
	Port     int    // 465 for implicit TLS, otherwise STARTTLS when offered
	Username string // optional
	Password string // optional
	From     string // RFC 5322 address, e.g. "PawWatch <alerts@example.com>"
}

// Validate validates the email configuration.
func (c *EmailConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("SMTP port is required")
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		return fmt.Errorf("from address is invalid: %w", err)
	}
	return nil
}

// RecipientResolver looks up the owner of a notification.
type RecipientResolver interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// EmailNotifier mails notifications to the pet's owner.
type EmailNotifier struct {
	config     EmailConfig
	from       *mail.Address
	recipients RecipientResolver
	templates  *Templates
	now        func() time.Time
}

// NewEmailNotifier creates a new email notifier.
func NewEmailNotifier(config EmailConfig, recipients RecipientResolver) (*EmailNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email config: %w", err)
	}
	if recipients == nil {
		return nil, fmt.Errorf("recipient resolver is required")
	}
	from, _ := mail.ParseAddress(config.From)

	templates, err := LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	return &EmailNotifier{
		config:     config,
		from:       from,
		recipients: recipients,
		templates:  templates,
		now:        time.Now,
	}, nil
}

// Channel returns models.ChannelEmail.
func (e *EmailNotifier) Channel() models.Channel {
	return models.ChannelEmail
}

// Send renders the notification and mails it to the owner's address.
func (e *EmailNotifier) Send(ctx context.Context, n *models.Notification) error {
	user, err := e.recipients.GetByID(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", n.UserID, err)
	}
	if user.Email == "" {
		return fmt.Errorf("user %s has no email address", n.UserID)
	}
	to := &mail.Address{Name: user.Name, Address: user.Email}

	data := NotificationToTemplateData(n)
	htmlBody, err := e.templates.RenderHTML(data)
	if err != nil {
		return fmt.Errorf("render HTML body: %w", err)
	}
	plainBody, err := e.templates.RenderPlain(data)
	if err != nil {
		return fmt.Errorf("render plain body: %w", err)
	}

	subject := fmt.Sprintf("[%s] PawWatch: %s", strings.ToUpper(string(n.Priority)), n.Title)
	msg := e.buildMessage(to, subject, plainBody, htmlBody)

	return e.deliver(ctx, to.Address, msg)
}

// Close is a no-op; every Send uses its own connection.
func (e *EmailNotifier) Close() error {
	return nil
}

func formatAddress(a *mail.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return a.String()
}

// buildMessage assembles a multipart/alternative message with plain and
// HTML parts.
func (e *EmailNotifier) buildMessage(to *mail.Address, subject, plainBody, htmlBody string) []byte {
	boundary := "pawwatch-" + uuid.NewString()
	domain := e.from.Address[strings.LastIndex(e.from.Address, "@")+1:]

	var msg strings.Builder
	headers := [][2]string{
		{"From", formatAddress(e.from)},
		{"To", formatAddress(to)},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"Date", e.now().Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)},
		{"MIME-Version", "1.0"},
		{"Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary)},
	}
	for _, h := range headers {
		fmt.Fprintf(&msg, "%s: %s\r\n", h[0], h[1])
	}
	msg.WriteString("\r\n")

	for _, part := range [][2]string{{"text/plain", plainBody}, {"text/html", htmlBody}} {
		fmt.Fprintf(&msg, "--%s\r\n", boundary)
		fmt.Fprintf(&msg, "Content-Type: %s; charset=UTF-8\r\n", part[0])
		msg.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		msg.WriteString(part[1])
		msg.WriteString("\r\n")
	}
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return []byte(msg.String())
}

// deliver runs one SMTP transaction bounded by ctx.
func (e *EmailNotifier) deliver(ctx context.Context, to string, msg []byte) error {
	client, err := e.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer client.Close()

	if e.config.Username != "" && e.config.Password != "" {
		auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	if err := client.Mail(e.from.Address); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end message: %w", err)
	}

	return client.Quit()
}

// dial connects with implicit TLS on port 465 and upgrades other ports with
// STARTTLS when the server offers it. The ctx deadline applies to the whole
// session.
func (e *EmailNotifier) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))
	tlsConfig := &tls.Config{ServerName: e.config.Host, MinVersion: tls.VersionTLS12}
	netDialer := &net.Dialer{Timeout: smtpDialTimeout}

	var (
		conn net.Conn
		err  error
	)
	if e.config.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if e.config.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}
	return client, nil
}
