package notifier

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendEnvelopeBot/internal/ports"
)

type mockLogger struct {
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

func testConfig() EmailConfig {
	return EmailConfig{
		SMTPHost:   "smtp.example.com",
		Username:   "bot@example.com",
		Password:   "secret",
		From:       "bot@example.com",
		Recipients: []string{"a@example.com", "b@example.com"},
	}
}

func TestNewEmailNotifier_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.Recipients = nil
	_, err := NewEmailNotifier(cfg, &mockLogger{})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewEmailNotifier(testConfig(), nil)
	assert.Error(t, err)
}

func TestEmailNotifier_Notify(t *testing.T) {
	logger := &mockLogger{}
	n, err := NewEmailNotifier(testConfig(), logger)
	require.NoError(t, err)
	n.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		assert.NotNil(t, a)
		return nil
	}

	n.Notify(context.Background(), "Position closed", "Symbol: BTCUSDT\nReason: TAKE_PROFIT")

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Position closed\r\n")
	assert.Contains(t, gotMsg, "To: a@example.com, b@example.com\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "Symbol: BTCUSDT\r\nReason: TAKE_PROFIT"))
	assert.Len(t, logger.infoMsgs, 1)
}

func TestEmailNotifier_FailureIsLoggedNotReturned(t *testing.T) {
	logger := &mockLogger{}
	n, err := NewEmailNotifier(testConfig(), logger)
	require.NoError(t, err)
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("dial tcp: refused") }

	n.Notify(context.Background(), "subject", "body")

	assert.Len(t, logger.errorMsgs, 1)
	assert.Empty(t, logger.infoMsgs)
}

func TestLogNotifier(t *testing.T) {
	logger := &mockLogger{}
	NewLogNotifier(logger).Notify(context.Background(), "Mode changed", "ENTRY -> MANAGE")
	assert.Equal(t, []string{"Notification: Mode changed"}, logger.infoMsgs)
}
