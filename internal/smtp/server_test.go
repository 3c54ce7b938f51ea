package smtp_test

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/monitoring"
	"mailarchive/backend/internal/service"
	"mailarchive/backend/internal/smtp"
	"mailarchive/backend/internal/storage/memory"
)

func startListener(t *testing.T, store *memory.Store) string {
	t.Helper()

	ingest := service.NewIngestService(service.IngestDeps{
		Messages: store,
		Resolver: service.NewRecipientResolver(store),
	})
	backend := smtp.NewBackend(smtp.BackendDeps{
		Ingest:  ingest,
		Limiter: smtp.NewConnectionLimiter(10, 0),
		Metrics: monitoring.NewMetrics(prometheus.NewRegistry()),
	})
	server := smtp.NewServer(smtp.SMTPConfig{
		Domain:       "archive.test",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, backend)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(l) }()
	t.Cleanup(func() { _ = server.Close() })

	return l.Addr().String()
}

func sendData(c *gosmtp.Client, from, to, body string) error {
	if err := c.Mail(from, nil); err != nil {
		return err
	}
	if err := c.Rcpt(to, nil); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

func TestServer_MalformedMessageDoesNotBreakSession(t *testing.T) {
	store := memory.NewStore()
	bob := &domain.User{Email: "bob@example.com"}
	require.NoError(t, store.CreateUser(context.Background(), bob))

	c, err := gosmtp.Dial(startListener(t, store))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Hello("client.test"))

	malformed := "From: alice@example.com\r\n" +
		"Content-Type: multipart/mixed\r\n" +
		"\r\n" +
		"no boundary here\r\n"
	err = sendData(c, "alice@example.com", "bob@example.com", malformed)
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 554, smtpErr.Code)

	valid := "From: Alice <alice@example.com>\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: after the bad one\r\n" +
		"Message-ID: <ok-1@example.com>\r\n" +
		"\r\n" +
		"hello bob\r\n"
	require.NoError(t, sendData(c, "alice@example.com", "bob@example.com", valid))

	// 同一封邮件重投仍返回 250
	require.NoError(t, sendData(c, "alice@example.com", "bob@example.com", valid))
	require.NoError(t, c.Quit())

	page, err := store.Find(context.Background(), domain.MessageFilter{RecipientID: bob.ID}, domain.PageRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	msg := page.Items[0]
	assert.Equal(t, "after the bad one", msg.Subject)
	assert.Equal(t, "hello bob", strings.TrimSpace(msg.Text))
	assert.Equal(t, "<ok-1@example.com>", msg.TransportID())
	assert.Equal(t, []string{bob.ID}, msg.Recipients)
}

func TestServer_RejectsOversizedMessage(t *testing.T) {
	store := memory.NewStore()
	ingest := service.NewIngestService(service.IngestDeps{
		Messages: store,
		Resolver: service.NewRecipientResolver(store),
	})
	backend := smtp.NewBackend(smtp.BackendDeps{Ingest: ingest, MaxMessageBytes: 512})
	server := smtp.NewServer(smtp.SMTPConfig{Domain: "archive.test", MaxMessageBytes: 512}, backend)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(l) }()
	t.Cleanup(func() { _ = server.Close() })

	c, err := gosmtp.Dial(l.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Hello("client.test"))

	body := "Subject: big\r\n\r\n"
	for len(body) < 4096 {
		body += "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef\r\n"
	}
	err = sendData(c, "alice@example.com", "bob@example.com", body)
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 552, smtpErr.Code)

	page, err := store.Find(context.Background(), domain.MessageFilter{}, domain.PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}
