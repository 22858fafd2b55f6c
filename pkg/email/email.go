package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// DefaultTimeout bounds a send whose context carries no deadline.
const DefaultTimeout = 30 * time.Second

// Sender delivers plain text email through an SMTP relay.
type Sender struct {
	Host     string
	Port     string
	From     string
	Password string
	Timeout  time.Duration

	// send is swapped in tests.
	send func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSender creates an SMTP sender.
func NewSender(host, port, from, password string) *Sender {
	s := &Sender{Host: host, Port: port, From: from, Password: password, Timeout: DefaultTimeout}
	s.send = s.sendMail
	return s
}

// SendEmail sends a plain text email using SMTP.
func (s *Sender) SendEmail(to []string, subject, body string) error {
	return s.SendEmailContext(context.Background(), to, subject, body)
}

// SendEmailContext sends a plain text email, giving up when ctx ends.
func (s *Sender) SendEmailContext(ctx context.Context, to []string, subject, body string) error {
	if _, ok := ctx.Deadline(); !ok && s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	auth := smtp.PlainAuth("", s.From, s.Password, s.Host)

	msg := []byte("To: " + strings.Join(to, ", ") + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" + body + "\r\n")

	address := s.Host + ":" + s.Port

	if err := s.send(ctx, address, auth, s.From, to, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// sendMail is smtp.SendMail over a connection bounded by ctx.
func (s *Sender) sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return err
		}
	}
	if ok, _ := c.Extension("AUTH"); ok && a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
