package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	wrapped := &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}

	assert.False(t, ShouldRetry(nil))
	assert.True(t, ShouldRetry(dial))
	assert.True(t, ShouldRetry(wrapped))
	assert.False(t, ShouldRetry(errors.New("telegram: bad request (400)")))
	assert.False(t, ShouldRetry(context.Canceled))
}

func TestFloodWait(t *testing.T) {
	flood := tele.FloodError{RetryAfter: 7}

	d, ok := FloodWait(flood)
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	_, ok = FloodWait(errors.New("chat not found"))
	assert.False(t, ok)

	_, ok = FloodWait(nil)
	assert.False(t, ok)
}
