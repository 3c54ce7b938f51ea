package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		cfg, err := LoadFile("")
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
		assert.Equal(t, ":25", cfg.SMTP.BindAddr)
		assert.Equal(t, "localhost", cfg.SMTP.Domain)
		assert.Equal(t, int64(25<<20), cfg.SMTP.MaxMessageBytes)
		assert.Equal(t, 100, cfg.SMTP.MaxRecipients)
		assert.Equal(t, 60*time.Second, cfg.SMTP.ReadTimeout)
		assert.Equal(t, "smtp", cfg.Relay.Provider)
		assert.Equal(t, 25, cfg.Relay.Port)
		assert.Equal(t, 30*time.Second, cfg.Relay.Timeout)
		assert.Empty(t, cfg.Database.Type)
		assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, "mailarchive:messages", cfg.Redis.Channel)
		assert.Empty(t, cfg.Archive.Path)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		t.Setenv("MAILARCHIVE_SERVER_PORT", "9090")
		t.Setenv("MAILARCHIVE_SMTP_BIND_ADDR", ":2525")
		t.Setenv("MAILARCHIVE_SMTP_DOMAIN", "archive.example.com")
		t.Setenv("MAILARCHIVE_SMTP_MAX_MESSAGE_BYTES", "1048576")
		t.Setenv("MAILARCHIVE_SMTP_READ_TIMEOUT", "2m")
		t.Setenv("MAILARCHIVE_RELAY_PROVIDER", "SES")
		t.Setenv("MAILARCHIVE_RELAY_SES_REGION", "eu-west-1")
		t.Setenv("MAILARCHIVE_DATABASE_TYPE", "sqlite")
		t.Setenv("MAILARCHIVE_DATABASE_DSN", "file:archive.db")
		t.Setenv("MAILARCHIVE_REDIS_ENABLED", "true")
		t.Setenv("MAILARCHIVE_LOG_LEVEL", "debug")

		cfg, err := LoadFile("")
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, ":2525", cfg.SMTP.BindAddr)
		assert.Equal(t, "archive.example.com", cfg.SMTP.Domain)
		assert.Equal(t, int64(1048576), cfg.SMTP.MaxMessageBytes)
		assert.Equal(t, 2*time.Minute, cfg.SMTP.ReadTimeout)
		assert.Equal(t, "ses", cfg.Relay.Provider)
		assert.Equal(t, "eu-west-1", cfg.Relay.SESRegion)
		assert.Equal(t, "sqlite", cfg.Database.Type)
		assert.Equal(t, "file:archive.db", cfg.Database.DSN)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("读取配置文件", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mailarchive.yaml")
		content := []byte(`
smtp:
  domain: mx.example.org
  max_recipients: 20
relay:
  host: smtp.example.org
  port: 587
  starttls: true
archive:
  path: /var/lib/mailarchive/raw
`)
		require.NoError(t, os.WriteFile(path, content, 0o600))
		t.Setenv("MAILARCHIVE_RELAY_PORT", "2587")

		cfg, err := LoadFile(path)
		require.NoError(t, err)

		assert.Equal(t, "mx.example.org", cfg.SMTP.Domain)
		assert.Equal(t, 20, cfg.SMTP.MaxRecipients)
		assert.Equal(t, "smtp.example.org", cfg.Relay.Host)
		assert.Equal(t, 2587, cfg.Relay.Port, "environment wins over file")
		assert.True(t, cfg.Relay.StartTLS)
		assert.Equal(t, "/var/lib/mailarchive/raw", cfg.Archive.Path)
	})

	t.Run("配置文件不存在", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadFile_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		message string
	}{
		{"不支持的中继", map[string]string{"MAILARCHIVE_RELAY_PROVIDER": "sendmail"}, "unsupported relay.provider"},
		{"TLS 互斥", map[string]string{"MAILARCHIVE_RELAY_TLS": "true", "MAILARCHIVE_RELAY_STARTTLS": "true"}, "mutually exclusive"},
		{"不支持的数据库", map[string]string{"MAILARCHIVE_DATABASE_TYPE": "oracle"}, "unsupported database.type"},
		{"缺少 DSN", map[string]string{"MAILARCHIVE_DATABASE_TYPE": "postgres"}, "database.dsn is required"},
		{"邮件上限非正", map[string]string{"MAILARCHIVE_SMTP_MAX_MESSAGE_BYTES": "0"}, "smtp.max_message_bytes"},
		{"端口越界", map[string]string{"MAILARCHIVE_SERVER_PORT": "70000"}, "server.port"},
		{"连接数为负", map[string]string{"MAILARCHIVE_SMTP_MAX_CONNECTIONS": "-1"}, "must not be negative"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadFile("")
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestLoadWithFile(t *testing.T) {
	fromEnv := filepath.Join(t.TempDir(), "env.yaml")
	fromFlag := filepath.Join(t.TempDir(), "flag.yaml")
	require.NoError(t, os.WriteFile(fromEnv, []byte("smtp:\n  domain: env.example.org\n"), 0o600))
	require.NoError(t, os.WriteFile(fromFlag, []byte("smtp:\n  domain: flag.example.org\n"), 0o600))
	t.Setenv("MAILARCHIVE_CONFIG", fromEnv)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, "env.example.org", cfg.SMTP.Domain)

	cfg, err = LoadWithFile(fromFlag)
	require.NoError(t, err)
	assert.Equal(t, "flag.example.org", cfg.SMTP.Domain)
}
