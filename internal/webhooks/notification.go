package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// Resource states delivered by the external calendar.
const (
	StateSync      = "sync"
	StateExists    = "exists"
	StateNotExists = "not_exists"
)

// Notification is the typed form of a push notification. Headers are
// parsed once at ingress; nothing downstream touches http.Header again.
type Notification struct {
	ChannelID     string
	ResourceID    string
	ResourceState string
	MessageNumber string
	Token         string
}

// ParseNotification extracts a notification from the request headers.
// ChannelID, ResourceID, ResourceState and MessageNumber are required;
// the token is optional and carried for signature verification.
func ParseNotification(h http.Header) (*Notification, error) {
	n := &Notification{
		ChannelID:     h.Get("X-Goog-Channel-ID"),
		ResourceID:    h.Get("X-Goog-Resource-ID"),
		ResourceState: h.Get("X-Goog-Resource-State"),
		MessageNumber: h.Get("X-Goog-Message-Number"),
		Token:         h.Get("X-Goog-Channel-Token"),
	}
	if n.ChannelID == "" || n.ResourceID == "" || n.ResourceState == "" || n.MessageNumber == "" {
		return nil, ErrMissingHeaders
	}
	return n, nil
}

// ChannelToken derives the per-channel token registered with the watch.
// The external calendar echoes it back on every notification, making it
// a channel-scoped signature over the shared secret.
func ChannelToken(secret, channelID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(channelID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the echoed token against the shared secret in constant
// time. A notification without a token passes: the token header is
// optional at the protocol level.
func (n *Notification) Verify(secret string) error {
	if n.Token == "" {
		return nil
	}
	expected := ChannelToken(secret, n.ChannelID)
	if !hmac.Equal([]byte(n.Token), []byte(expected)) {
		return fmt.Errorf("%w: channel %s", ErrInvalidSignature, n.ChannelID)
	}
	return nil
}
