package telegram

import (
	"net"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/captionrelay/core/config"

	tele "gopkg.in/telebot.v4"
)

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	AllowedUpdates         []string
	Webhook                WebhookOptions
}

// BuildPoller returns a webhook listener in webhook mode and a long poller
// otherwise. The long poll timeout defaults to 10s.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:         net.JoinHostPort(opts.Webhook.Listen, strconv.Itoa(opts.Webhook.Port)),
			AllowedUpdates: opts.AllowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
		}
	}

	timeout := time.Duration(opts.LongPollTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &tele.LongPoller{Timeout: timeout, AllowedUpdates: opts.AllowedUpdates}
}
