package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mailarchive/backend/internal/domain"
	"mailarchive/backend/internal/relay"
	"mailarchive/backend/internal/storage/memory"
)

type dispatchFixture struct {
	svc   *DispatchService
	relay *MockRelay
	store *memory.Store
	users map[string]string
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()

	store := memory.NewStore()
	users := map[string]string{}
	for _, email := range []string{"alice@example.com", "bob@example.org"} {
		u := &domain.User{Email: email}
		require.NoError(t, store.CreateUser(context.Background(), u))
		users[email] = u.ID
	}

	mockRelay := new(MockRelay)
	svc := NewDispatchService(DispatchDeps{
		Relay:    mockRelay,
		Messages: store,
		Resolver: NewRecipientResolver(store),
	})
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

	return &dispatchFixture{svc: svc, relay: mockRelay, store: store, users: users}
}

var testSender = domain.Sender{UserID: "alice-id", Address: "alice@example.com", Name: "Alice"}

func TestDispatchService_Send(t *testing.T) {
	f := newDispatchFixture(t)

	var submitted *relay.Envelope
	f.relay.On("Submit", mock.Anything, mock.AnythingOfType("*relay.Envelope")).
		Run(func(args mock.Arguments) { submitted = args.Get(1).(*relay.Envelope) }).
		Return("relay-123", nil).Once()

	msg, err := f.svc.Send(context.Background(), testSender, OutboundRequest{
		To:      "Bob <Bob@Example.org>",
		Subject: "周报",
		Text:    "本周进展",
		HTML:    "<p>本周进展</p>",
	})
	require.NoError(t, err)
	f.relay.AssertExpectations(t)

	require.NotNil(t, submitted)
	assert.Equal(t, "alice@example.com", submitted.From)
	assert.Equal(t, []string{"bob@example.org"}, submitted.To)

	assert.True(t, msg.IsSent)
	assert.Equal(t, "relay-123", msg.TransportID())
	assert.Equal(t, "周报", msg.Subject)
	assert.Equal(t, "本周进展", msg.Text)
	assert.Equal(t, "<p>本周进展</p>", msg.HTML)
	assert.Equal(t, []string{"alice@example.com"}, msg.From.Addresses())
	assert.Equal(t, []string{"bob@example.org"}, msg.To.Addresses())
	assert.Equal(t, "alice@example.com", msg.SMTPMailFrom)

	assert.Equal(t, []string{f.users["bob@example.org"]}, msg.Recipients)
	assert.NotContains(t, msg.Recipients, f.users["alice@example.com"])

	stored, err := f.store.FindByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsSent)
}

func TestDispatchService_SendValidation(t *testing.T) {
	tests := []struct {
		name   string
		sender domain.Sender
		req    OutboundRequest
		field  string
	}{
		{"缺少收件人", testSender, OutboundRequest{Subject: "s", Text: "t"}, "to"},
		{"收件人格式错误", testSender, OutboundRequest{To: "not-an-address", Subject: "s", Text: "t"}, "to"},
		{"多个收件人", testSender, OutboundRequest{To: "a@example.com, b@example.com", Subject: "s", Text: "t"}, "to"},
		{"缺少主题", testSender, OutboundRequest{To: "bob@example.org", Subject: " ", Text: "t"}, "subject"},
		{"缺少正文", testSender, OutboundRequest{To: "bob@example.org", Subject: "s"}, "body"},
		{"发件人无效", domain.Sender{Address: "broken"}, OutboundRequest{To: "bob@example.org", Subject: "s", Text: "t"}, "from"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatchFixture(t)

			_, err := f.svc.Send(context.Background(), tt.sender, tt.req)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
			f.relay.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		})
	}
}

func TestDispatchService_RelayFailureStoresNothing(t *testing.T) {
	f := newDispatchFixture(t)
	f.relay.On("Submit", mock.Anything, mock.Anything).
		Return("", &relay.RelayError{Provider: "mock", Err: errors.New("550 rejected")}).Once()

	msg, err := f.svc.Send(context.Background(), testSender, OutboundRequest{
		To: "bob@example.org", Subject: "hi", Text: "hello",
	})
	assert.Nil(t, msg)

	var relayErr *relay.RelayError
	require.ErrorAs(t, err, &relayErr)

	page, err := f.store.Find(context.Background(), domain.MessageFilter{}, domain.PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestDispatchService_RelayPlainErrorIsWrapped(t *testing.T) {
	f := newDispatchFixture(t)
	boom := errors.New("connection reset")
	f.relay.On("Submit", mock.Anything, mock.Anything).Return("", boom).Once()

	_, err := f.svc.Send(context.Background(), testSender, OutboundRequest{
		To: "bob@example.org", Subject: "hi", Text: "hello",
	})

	var relayErr *relay.RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, "mock", relayErr.Provider)
	assert.ErrorIs(t, err, boom)
}

func TestDispatchService_UnknownRecipientStillArchived(t *testing.T) {
	f := newDispatchFixture(t)
	f.relay.On("Submit", mock.Anything, mock.Anything).Return("relay-9", nil).Once()

	msg, err := f.svc.Send(context.Background(), testSender, OutboundRequest{
		To: "outsider@elsewhere.net", Subject: "hi", HTML: "<b>hi</b>",
	})
	require.NoError(t, err)
	assert.Empty(t, msg.Recipients)
	assert.Empty(t, msg.Text)
	assert.Equal(t, "<b>hi</b>", msg.HTML)
}

func TestDispatchService_RecipientsSubsetOfTo(t *testing.T) {
	f := newDispatchFixture(t)
	f.relay.On("Submit", mock.Anything, mock.Anything).Return("relay-10", nil).Once()

	msg, err := f.svc.Send(context.Background(), testSender, OutboundRequest{
		To: "bob@example.org", Subject: "subset", Text: "x",
	})
	require.NoError(t, err)

	byID := map[string]string{}
	for email, id := range f.users {
		byID[id] = email
	}
	to := msg.To.Addresses()
	require.NotEmpty(t, msg.Recipients)
	for _, id := range msg.Recipients {
		email, ok := byID[id]
		require.True(t, ok, "recipient %s is not a directory user", id)
		assert.Contains(t, to, email)
	}

	stored, err := f.store.FindByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Recipients, stored.Recipients)
}
