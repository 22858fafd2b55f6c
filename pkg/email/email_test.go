package email

import (
	"context"
	"errors"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendEmail(t *testing.T) {
	s := NewSender("smtp.example.com", "587", "bot@example.com", "pw")
	var addr, from string
	var to []string
	var msg []byte
	var hasDeadline bool
	s.send = func(ctx context.Context, a string, _ smtp.Auth, f string, rcpt []string, m []byte) error {
		_, hasDeadline = ctx.Deadline()
		addr, from, to, msg = a, f, rcpt, m
		return nil
	}

	require.NoError(t, s.SendEmail([]string{"ops@example.com", "cto@example.com"}, "Outage", "Maps are down"))
	assert.Equal(t, "smtp.example.com:587", addr)
	assert.Equal(t, "bot@example.com", from)
	assert.Equal(t, []string{"ops@example.com", "cto@example.com"}, to)
	assert.True(t, strings.HasPrefix(string(msg), "To: ops@example.com, cto@example.com\r\nSubject: Outage\r\n\r\n"))
	assert.Contains(t, string(msg), "Maps are down")
	assert.True(t, hasDeadline, "sends without a deadline get the default timeout")
}

func TestSendEmailError(t *testing.T) {
	s := NewSender("smtp.example.com", "587", "bot@example.com", "pw")
	boom := errors.New("connection refused")
	s.send = func(context.Context, string, smtp.Auth, string, []string, []byte) error { return boom }

	err := s.SendEmail([]string{"ops@example.com"}, "s", "b")
	assert.True(t, errors.Is(err, boom))
}

func TestSendEmailSilentServerHonorsDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// accept and never greet
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	s := NewSender(host, port, "bot@example.com", "pw")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = s.SendEmailContext(ctx, []string{"ops@example.com"}, "s", "b")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
