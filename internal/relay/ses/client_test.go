package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailarchive/backend/internal/relay"
)

// mockSESClient 实现 SendEmailAPI
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-message-id")}, nil
}

func testEnvelope() *relay.Envelope {
	return &relay.Envelope{
		From:      "alice@example.com",
		To:        []string{"bob@example.org"},
		Data:      []byte("Subject: hi\r\n\r\nhello\r\n"),
		MessageID: "<id-1@example.com>",
	}
}

func TestClient_Submit(t *testing.T) {
	mock := &mockSESClient{}
	client := NewWithClient(mock)
	assert.Equal(t, "ses", client.Name())

	id, err := client.Submit(context.Background(), testEnvelope())
	require.NoError(t, err)
	assert.Equal(t, "ses-message-id", id)

	require.Equal(t, 1, mock.callCount)
	input := mock.lastInput
	assert.Equal(t, "alice@example.com", aws.ToString(input.FromEmailAddress))
	assert.Equal(t, []string{"bob@example.org"}, input.Destination.ToAddresses)
	require.NotNil(t, input.Content.Raw)
	assert.Equal(t, testEnvelope().Data, input.Content.Raw.Data)
	assert.Nil(t, input.Content.Simple)
	assert.Nil(t, input.ConfigurationSetName)
}

func TestClient_SubmitConfigurationSet(t *testing.T) {
	mock := &mockSESClient{}
	client := NewWithClient(mock)
	client.configurationSet = "archive"

	_, err := client.Submit(context.Background(), testEnvelope())
	require.NoError(t, err)
	assert.Equal(t, "archive", aws.ToString(mock.lastInput.ConfigurationSetName))
}

func TestClient_SubmitErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		temporary bool
	}{
		{"限流", &smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "slow down"}, true},
		{"服务端故障", &smithy.GenericAPIError{Code: "InternalFailure", Fault: smithy.FaultServer}, true},
		{"发件人未验证", &smithy.GenericAPIError{Code: "MessageRejected", Message: "not verified", Fault: smithy.FaultClient}, false},
		{"超时", context.DeadlineExceeded, true},
		{"其他错误", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSESClient{
				sendFn: func(context.Context, *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
					return nil, tt.err
				},
			}

			id, err := NewWithClient(mock).Submit(context.Background(), testEnvelope())
			assert.Empty(t, id)

			var relayErr *relay.RelayError
			require.ErrorAs(t, err, &relayErr)
			assert.Equal(t, "ses", relayErr.Provider)
			assert.Equal(t, tt.temporary, relayErr.Temporary)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClient_SubmitEmptyMessageID(t *testing.T) {
	mock := &mockSESClient{
		sendFn: func(context.Context, *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
			return &sesv2.SendEmailOutput{}, nil
		},
	}

	_, err := NewWithClient(mock).Submit(context.Background(), testEnvelope())
	var relayErr *relay.RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.False(t, relayErr.Temporary)
}
