package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"

	// maxCaptionLog bounds user supplied text kept in a log line.
	maxCaptionLog = 160
)

var errNoWriter = errors.New("logger: writer not initialized")

// tokenPattern matches a bot token embedded in an API URL.
var tokenPattern = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// RedactToken masks bot tokens in s, e.g. in transport errors that echo the request URL.
func RedactToken(s string) string {
	if !strings.Contains(s, ":") {
		return s
	}
	return tokenPattern.ReplaceAllString(s, "bot<redacted>")
}

// userTextKeys hold user supplied text that is truncated before logging.
var userTextKeys = map[string]struct{}{
	"caption":     {},
	"text":        {},
	"remove_word": {},
	"add_word":    {},
}

// lineWriter receives one formatted line per record.
type lineWriter interface {
	Write(line []byte) error
}

type handlerConfig struct {
	level    slog.Leveler
	writer   lineWriter
	format   logFormat
	keyOrder []string
}

type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled implements slog.Handler.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle renders r as a single JSON or key=value line.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errNoWriter
	}

	isJSON := h.cfg.format == formatJSON
	rec := make(record, 16)
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	rec["level"] = normalizeLevel(r.Level.String())
	if isJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	}

	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		rec.add(prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.add(prefix, a)
		return true
	})

	rec.fromContext(ctx)
	rec.compactRID(isJSON)
	if r.Message != "" {
		rec.setDefault("event", r.Message)
	}
	rec.setDefault("event", "unknown")
	rec.setDefault("component", "app")
	rec.normalize()

	line, err := rec.encode(h.cfg.format, h.cfg.keyOrder)
	if err != nil {
		return err
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

// WithAttrs implements slog.Handler.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup implements slog.Handler.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// record is the flattened field set of one log line.
type record map[string]any

func (rec record) add(prefix string, attr slog.Attr) {
	key := attr.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if attr.Value.Kind() == slog.KindGroup {
		for _, child := range attr.Value.Group() {
			rec.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := normalizeAttr(key, attr.Value.Resolve()); ok {
		rec[k] = v
	}
}

func (rec record) setDefault(key string, val any) {
	if s, ok := rec.str(key); ok && s != "" {
		return
	}
	rec[key] = val
}

func (rec record) str(key string) (string, bool) {
	v, ok := rec[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	}
	return fmt.Sprint(v), true
}

// contextFields are copied from the context unless the record already has them.
var contextFields = []struct {
	key  string
	from func(context.Context) any
}{
	{"rid", func(ctx context.Context) any { return RIDFrom(ctx) }},
	{"batch_id", func(ctx context.Context) any { return BatchIDFrom(ctx) }},
	{"user_id", func(ctx context.Context) any { return UserIDFrom(ctx) }},
	{"update_id", func(ctx context.Context) any { return UpdateIDFrom(ctx) }},
	{"chat_id", func(ctx context.Context) any { return ChatIDFrom(ctx) }},
	{"handler", func(ctx context.Context) any { return HandlerFrom(ctx) }},
}

func (rec record) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	for _, f := range contextFields {
		if _, ok := rec[f.key]; ok {
			continue
		}
		switch v := f.from(ctx).(type) {
		case string:
			if v != "" {
				rec[f.key] = v
			}
		case int64:
			if v != 0 {
				rec[f.key] = v
			}
		case int:
			if v != 0 {
				rec[f.key] = v
			}
		}
	}
}

// compactRID shortens rid; JSON lines keep the original as rid_full.
func (rec record) compactRID(keepFull bool) {
	rid, ok := rec.str("rid")
	if !ok || rid == "" {
		return
	}
	compact := CompactRID(rid)
	if compact == "" || compact == rid {
		return
	}
	if _, seen := rec["rid_full"]; keepFull && !seen {
		rec["rid_full"] = rid
	}
	rec["rid"] = compact
}

// normalize maps enumerations to their canonical spelling, bounds user text,
// redacts tokens and drops empty values.
func (rec record) normalize() {
	if level, ok := rec.str("level"); ok {
		rec["level"] = normalizeLevel(level)
	}
	if s, ok := rec.str("status"); ok && s != "" {
		normalized, _ := normalizeStatus(s)
		rec["status"] = normalized
	}
	if o, ok := rec.str("outcome"); ok && o != "" {
		if normalized, valid := normalizeOutcome(o); valid {
			rec["outcome"] = normalized
		} else {
			delete(rec, "outcome")
		}
	}

	for k, v := range rec {
		switch val := v.(type) {
		case nil:
			delete(rec, k)
		case string:
			if val == "" {
				delete(rec, k)
				continue
			}
			if _, user := userTextKeys[k]; user {
				val = SanitizeLimit(val, maxCaptionLog)
			}
			rec[k] = RedactToken(val)
		case fmt.Stringer:
			if val.String() == "" {
				delete(rec, k)
			}
		}
	}
}

func (rec record) encode(format logFormat, order []string) ([]byte, error) {
	keys := rec.orderedKeys(order)
	var b strings.Builder
	if format != formatJSON {
		for i, key := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(formatValueKV(rec[key]))
		}
		return []byte(b.String()), nil
	}

	b.WriteByte('{')
	for i, key := range keys {
		data, err := json.Marshal(rec[key])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", key, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(key))
		b.WriteByte(':')
		b.Write(data)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// orderedKeys lists keys named in order first, then the rest alphabetically.
func (rec record) orderedKeys(order []string) []string {
	keys := make([]string, 0, len(rec))
	seen := make(map[string]struct{}, len(rec))
	for _, key := range order {
		if _, ok := rec[key]; ok {
			if _, dup := seen[key]; !dup {
				keys = append(keys, key)
				seen[key] = struct{}{}
			}
		}
	}
	rest := make([]string, 0, len(rec)-len(keys))
	for key := range rec {
		if _, ok := seen[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, val.Uint64(), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}

	switch x := val.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case string:
		return key, strings.TrimSpace(x), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationKey renames duration attributes so every value is explicit about
// being milliseconds: duration -> duration_ms, wait -> wait_ms.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_duration"):
		return key + "_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return key + "_ms"
	}
}

func formatValueKV(val any) string {
	switch v := val.(type) {
	case string:
		if strings.IndexFunc(v, needsQuote) >= 0 {
			return strconv.Quote(v)
		}
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := fmt.Sprint(val)
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
