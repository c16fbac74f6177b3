package netutil

import (
	"errors"
	"net"
	"net/url"
	"time"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether a network error is worth retrying.
// It focuses on transient dial/timeout failures produced by net/http
// while contacting the Telegram API.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Op == "dial" {
			return true
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			return ShouldRetry(urlErr.Err)
		}
	}

	return false
}

// FloodWait extracts the mandatory wait from a Telegram flood-control error.
// The bool is false for every other error.
func FloodWait(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return time.Duration(floodErr.RetryAfter) * time.Second, true
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return time.Duration(floodPtr.RetryAfter) * time.Second, true
	}
	return 0, false
}
