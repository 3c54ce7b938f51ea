package mailparse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParse_PlainText(t *testing.T) {
	raw := crlf(
		"Received: from a.example.com",
		"Received: from b.example.com",
		"From: Alice <Alice@Example.com>",
		"To: bob@example.com, Carol <carol@example.com>",
		"Subject: =?UTF-8?B?5L2g5aW9?=",
		"Message-ID: <abc123@example.com>",
		"Date: Mon, 02 Jan 2006 15:04:05 +0000",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hello Bob",
		"",
	)

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "你好", msg.Subject)
	assert.Equal(t, "Hello Bob\r\n", msg.Text)
	assert.Empty(t, msg.HTML)
	assert.Equal(t, "<abc123@example.com>", msg.TransportID())
	assert.False(t, msg.IsSent)
	assert.True(t, msg.ReceivedAt.IsZero())
	assert.Equal(t, int64(len(raw)), msg.Size)

	require.Len(t, msg.From.Value, 1)
	assert.Equal(t, "alice@example.com", msg.From.Value[0].Address)
	assert.Equal(t, "Alice", msg.From.Value[0].Name)
	assert.Equal(t, "Alice <Alice@Example.com>", msg.From.Text)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, msg.To.Addresses())

	require.NotNil(t, msg.Date)
	assert.True(t, msg.Date.Equal(time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)))

	assert.Equal(t, []string{"from a.example.com", "from b.example.com"}, msg.Headers["received"])
	assert.Equal(t, "你好", msg.Headers.Get("subject"))
	assert.Empty(t, msg.Attachments)
}

func TestParse_MultipartWithAttachment(t *testing.T) {
	raw := crlf(
		"From: alice@example.com",
		"To: bob@example.com",
		"Subject: Report",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain body",
		"--inner",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>html body</p>",
		"--inner--",
		"--outer",
		"Content-Type: application/octet-stream",
		`Content-Disposition: attachment; filename="report.bin"`,
		"Content-Transfer-Encoding: base64",
		"",
		"aGVsbG8=",
		"--outer",
		"Content-Type: image/png",
		"Content-Disposition: inline",
		"Content-ID: <logo@example.com>",
		"Content-Transfer-Encoding: base64",
		"",
		"iVBORw==",
		"--outer",
		"Content-Type: text/plain",
		"",
		"second plain part is ignored",
		"--outer--",
		"",
	)

	msg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "plain body", msg.Text)
	assert.Equal(t, "<p>html body</p>", msg.HTML)
	assert.Nil(t, msg.TransportMessageID)

	require.Len(t, msg.Attachments, 2)
	att := msg.Attachments[0]
	assert.Equal(t, "report.bin", att.Filename)
	assert.Equal(t, "application/octet-stream", att.ContentType)
	assert.Equal(t, []byte("hello"), att.Content)
	assert.Equal(t, int64(5), att.Size)
	assert.False(t, att.Inline)

	logo := msg.Attachments[1]
	assert.Equal(t, "logo@example.com", logo.ContentID)
	assert.True(t, logo.Inline)
	assert.Equal(t, 1, logo.Position)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, logo.Content)
}

func TestParse_LegacyCharset(t *testing.T) {
	raw := crlf(
		"From: sender@example.cn",
		"To: user@example.com",
		"Subject: gbk",
		"Content-Type: text/plain; charset=gbk",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"=C4=E3=BA=C3",
	)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "你好", msg.Text)
}

func TestParse_UnknownCharsetIsTolerated(t *testing.T) {
	raw := crlf(
		"From: sender@example.com",
		"To: user@example.com",
		"Subject: odd charset",
		"Content-Type: text/plain; charset=x-made-up",
		"",
		"raw bytes kept",
	)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "raw bytes kept", msg.Text)
}

func TestParse_MissingHeadersProduceEmptyFields(t *testing.T) {
	msg, err := Parse(crlf("X-Only: yes", "", "just a body"))
	require.NoError(t, err)

	assert.Empty(t, msg.Subject)
	assert.Empty(t, msg.From.Value)
	assert.Empty(t, msg.To.Text)
	assert.Nil(t, msg.Date)
	assert.Equal(t, "just a body", msg.Text)
}

func TestParse_CorruptAttachmentEncodingIsTolerated(t *testing.T) {
	raw := crlf(
		"From: alice@example.com",
		"To: bob@example.com",
		"Subject: broken pdf",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/plain",
		"",
		"see attached",
		"--b",
		"Content-Type: application/pdf; name=a.pdf",
		"Content-Transfer-Encoding: base64",
		"",
		"!!!notbase64!!!",
		"--b--",
		"",
	)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "see attached", msg.Text)

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "a.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, int64(len(att.Content)), att.Size)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"空邮件", []byte("  \r\n")},
		{"头部缺少冒号", crlf("this line is not a header", "Subject: x", "", "body")},
		{"multipart 缺少 boundary", crlf("Content-Type: multipart/mixed", "", "body")},
		{"boundary 从未出现", crlf(`Content-Type: multipart/mixed; boundary="b"`, "", "no parts here", "")},
		{"multipart 未结束", crlf(`Content-Type: multipart/mixed; boundary="b"`, "", "--b", "Content-Type: text/plain", "", "truncated")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(tt.raw)
			assert.Nil(t, msg)

			var normErr *NormalizationError
			require.ErrorAs(t, err, &normErr)
			assert.NotEmpty(t, normErr.Reason)
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "ab", sanitize("a\x00b"))
	assert.Equal(t, "a�b", sanitize("a\xffb"))
}
