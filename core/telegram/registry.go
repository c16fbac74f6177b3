package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/captionrelay/core/logger"
	"github.com/m3rciful/captionrelay/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrInvalidRegistration is returned for a command or callback missing its
	// name, handler or (for commands) description, or a command without a
	// leading slash.
	ErrInvalidRegistration = errors.New("telegram: invalid registration")
	// ErrDuplicateRegistration is returned when a name is already taken.
	ErrDuplicateRegistration = errors.New("telegram: already registered")
)

// Registry holds bot commands and callbacks. It is safe for concurrent use.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	aliases          map[string]string
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown-callback handler
// answers "Unsupported action".
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

// RegisterCommand adds cmd under name, which must start with a slash.
// Aliases may be given with or without the slash.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	if r == nil || cmd.Handler == nil || cmd.Description == "" || !strings.HasPrefix(name, "/") || len(name) < 2 {
		return r.rejected("command", name, ErrInvalidRegistration)
	}
	name = strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.commands[name]; taken {
		return r.rejected("command", name, ErrDuplicateRegistration)
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Aliases {
		alias = "/" + strings.TrimPrefix(strings.ToLower(alias), "/")
		if _, taken := r.commands[alias]; !taken {
			r.aliases[alias] = name
		}
	}
	return nil
}

// RegisterCallback maps key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if r == nil || key == "" || handler == nil {
		return r.rejected("callback", key, ErrInvalidRegistration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.callbacks[key]; taken {
		return r.rejected("callback", key, ErrDuplicateRegistration)
	}
	r.callbacks[key] = handler
	return nil
}

func (r *Registry) rejected(kind, name string, err error) error {
	logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register."+kind+".skip",
		slog.String("name", name),
		slog.String("reason", err.Error()),
	)
	return fmt.Errorf("%w: %s %q", err, kind, name)
}

// LookupCommand resolves message text to a registered command. Aliases, a
// trailing "@botname" and arguments are handled; the canonical name is
// returned with the command.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	if r == nil {
		return "", commands.Command{}, false
	}
	name := CommandName(text)
	if name == "" {
		return "", commands.Command{}, false
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// CommandName extracts the command token from message text: "/id@bot x" yields "/id".
func CommandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name)
}

// CommandArgs returns the whitespace-separated arguments following the command token.
func CommandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	return r.filterCommands(func(commands.Command) bool { return true })
}

// ChannelCommands returns the commands flagged to answer channel posts.
func (r *Registry) ChannelCommands() map[string]commands.Command {
	return r.filterCommands(func(c commands.Command) bool { return c.Channel })
}

func (r *Registry) filterCommands(keep func(commands.Command) bool) map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]commands.Command, len(r.commands))
	for name, cmd := range r.commands {
		if keep(cmd) {
			out[name] = cmd
		}
	}
	return out
}

// ListCommands returns the command menu sorted by name. With visibleOnly,
// hidden and admin-only commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for name, cmd := range r.Commands() {
		if visibleOnly && (cmd.Hidden || cmd.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// GetCallback returns the handler registered for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered callback keys, sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetCallbackNotFound replaces the handler for unknown callback keys. nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown callback keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetupCommands publishes the visible commands as the bot's command menu.
// Failure is logged; the bot works without a menu.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			slog.String("err", logger.RedactToken(err.Error())),
		)
		return
	}
	logger.TWire.LogAttrs(context.Background(), slog.LevelInfo, "register.commands.set",
		slog.Int("commands", len(list)),
	)
}
