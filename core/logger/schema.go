package logger

import "strings"

// Level names as written in the level field.
var levelAliases = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
	"fatal":   "FATAL",
}

// status is free-form but these values are the vocabulary dashboards key on.
var knownStatus = set("ok", "fail", "skip", "retry", "rate_limited", "cancelled", "queued")

// outcome values outside this set are dropped from the line.
var knownOutcome = set(
	"ok", "fail", "cancelled", "rate_limited",
	"success", "retryable_failure", "fatal_failure",
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if name, ok := levelAliases[strings.ToLower(level)]; ok {
		return name
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) (string, bool) {
	status = strings.ToLower(strings.TrimSpace(status))
	_, known := knownStatus[status]
	return status, known
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	_, known := knownOutcome[outcome]
	return outcome, known
}

// defaultKeyOrder puts correlation fields first, then relay fields, then errors.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type",
	"handler", "state", "from_state", "to_state", "cb_key",
	"outcome", "duration_ms", "messages", "kb",
	"batch_id", "destination", "kind", "position", "total", "succeeded", "failed", "queue",
	"attempt", "attempts", "retry_after_s", "wait_ms",
	"payload", "text", "caption", "lang", "username",
	"mode", "listen", "public_url", "http_code",
	"db", "host", "port",
	"err", "err_code", "cause", "retryable",
	"sessions", "evicted",
}
