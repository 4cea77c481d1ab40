package webhooks

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notificationHeaders() http.Header {
	h := http.Header{}
	h.Set("X-Goog-Channel-ID", "chan-1")
	h.Set("X-Goog-Resource-ID", "res-1")
	h.Set("X-Goog-Resource-State", StateExists)
	h.Set("X-Goog-Message-Number", "42")
	return h
}

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification(notificationHeaders())
	require.NoError(t, err)
	assert.Equal(t, "chan-1", n.ChannelID)
	assert.Equal(t, "res-1", n.ResourceID)
	assert.Equal(t, StateExists, n.ResourceState)
	assert.Equal(t, "42", n.MessageNumber)
}

func TestParseNotificationMissingHeaders(t *testing.T) {
	for _, missing := range []string{
		"X-Goog-Channel-ID",
		"X-Goog-Resource-ID",
		"X-Goog-Resource-State",
		"X-Goog-Message-Number",
	} {
		t.Run(missing, func(t *testing.T) {
			h := notificationHeaders()
			h.Del(missing)
			_, err := ParseNotification(h)
			assert.ErrorIs(t, err, ErrMissingHeaders)
		})
	}
}

func TestVerifyToken(t *testing.T) {
	const secret = "signing-secret"
	n := &Notification{ChannelID: "chan-1", Token: ChannelToken(secret, "chan-1")}
	assert.NoError(t, n.Verify(secret))

	n.Token = ChannelToken("other-secret", "chan-1")
	assert.ErrorIs(t, n.Verify(secret), ErrInvalidSignature)
}

func TestVerifyTokenOptional(t *testing.T) {
	n := &Notification{ChannelID: "chan-1"}
	assert.NoError(t, n.Verify("signing-secret"))
}
