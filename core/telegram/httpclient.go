package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/captionrelay/core/telegram/netutil"
)

const (
	defaultLongPoll     = 10 * time.Second
	dialTimeout         = 5 * time.Second
	tlsHandshakeTimeout = 5 * time.Second
	idleConnTimeout     = 30 * time.Second
	keepAliveInterval   = 30 * time.Second
	// headerSlack is allowed on top of the long-poll timeout before the
	// server must start answering.
	headerSlack = 20 * time.Second
	// requestSlack bounds the rest of a request, including large uploads.
	requestSlack   = 60 * time.Second
	retryAttempts  = 3
	retryBaseDelay = 2 * time.Second
)

// BuildHTTPClient returns an HTTP client for Bot API calls whose timeouts
// outlast a getUpdates call held open for longPoll.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	if longPoll <= 0 {
		longPoll = defaultLongPoll
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: longPoll + headerSlack,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: longPoll + requestSlack,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: retryAttempts,
			backoff:    retryBaseDelay,
		},
	}
}

// retryTransport repeats requests that failed before reaching the API, such
// as dial errors and timeouts. API level errors are never retried here.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.maxRetries && netutil.ShouldRetry(err); attempt++ {
		retry, rerr := rewind(req)
		if rerr != nil {
			return nil, err
		}
		if delay := t.backoff * time.Duration(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return nil, req.Context().Err()
			case <-timer.C:
			}
		}
		resp, err = base.RoundTrip(retry)
	}
	return resp, err
}

// rewind clones req with a fresh body. Requests whose body cannot be
// replayed are not retried.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, http.ErrBodyNotAllowed
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
