package router

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tg "github.com/m3rciful/captionrelay/core/telegram"
	"github.com/m3rciful/captionrelay/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// newBot returns an offline bot whose API calls hit a stub that always
// answers ok.
func newBot(t *testing.T) *tele.Bot {
	t.Helper()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	t.Cleanup(api.Close)

	bot, err := tele.NewBot(tele.Settings{Token: "1:test", URL: api.URL, Offline: true})
	require.NoError(t, err)
	return bot
}

type fakeFSM struct {
	active  map[int64]bool
	handled int
}

func (f *fakeFSM) InProgress(key int64) bool { return f.active[key] }

func (f *fakeFSM) Handle(tele.Context) error {
	f.handled++
	return nil
}

type recorder struct {
	calls map[string]int
}

func (r *recorder) handler(name string) tele.HandlerFunc {
	return func(tele.Context) error {
		r.calls[name]++
		return nil
	}
}

func routeFor(t *testing.T, routes []tg.Route, endpoint any) tele.HandlerFunc {
	t.Helper()
	for _, r := range routes {
		if r.Endpoint == endpoint {
			return r.Handler
		}
	}
	t.Fatalf("no route for %v", endpoint)
	return nil
}

func message(bot *tele.Bot, chatID int64, text string) tele.Context {
	return bot.NewContext(tele.Update{ID: 1, Message: &tele.Message{
		Sender: &tele.User{ID: chatID},
		Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
		Text:   text,
	}})
}

func video(bot *tele.Bot, chatID int64) tele.Context {
	return bot.NewContext(tele.Update{ID: 2, Message: &tele.Message{
		Sender: &tele.User{ID: chatID},
		Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
		Video:  &tele.Video{File: tele.File{FileID: "vid"}},
	}})
}

type staticFallbacks struct {
	Text     tele.HandlerFunc
	Media    tele.HandlerFunc
	Callback tele.HandlerFunc
}

func (s staticFallbacks) UnknownText() tele.HandlerFunc { return s.Text }
func (s staticFallbacks) UnknownMedia() tele.HandlerFunc { return s.Media }
func (s staticFallbacks) UnknownCallback() tele.HandlerFunc { return s.Callback }

func fallbacks(rec *recorder) staticFallbacks {
	return staticFallbacks{
		Text:     rec.handler("unknown_text"),
		Media:    rec.handler("unknown_media"),
		Callback: rec.handler("unknown_callback"),
	}
}

func TestMessageRoutes(t *testing.T) {
	bot := newBot(t)
	rec := &recorder{calls: map[string]int{}}
	reg := tg.NewRegistry()
	reg.RegisterCommand("/help", commands.Command{Handler: rec.handler("help"), Description: "help"})
	reg.RegisterCommand("/stats", commands.Command{Handler: rec.handler("stats"), Description: "stats", AdminOnly: true})

	fsm := &fakeFSM{active: map[int64]bool{10: true}}
	routes := MessageRoutes(fsm, reg, MessageOptions{Fallbacks: fallbacks(rec)})
	text := routeFor(t, routes, tele.OnText)
	media := routeFor(t, routes, tele.OnVideo)

	require.NoError(t, text(message(bot, 10, "OldName")))
	require.NoError(t, media(video(bot, 10)))
	assert.Equal(t, 2, fsm.handled)

	require.NoError(t, text(message(bot, 20, "help")))
	require.NoError(t, text(message(bot, 20, "stats")))
	require.NoError(t, text(message(bot, 20, "whatever")))
	require.NoError(t, media(video(bot, 20)))

	assert.Equal(t, 1, rec.calls["help"])
	assert.Zero(t, rec.calls["stats"], "admin commands are not reachable through text")
	assert.Equal(t, 2, rec.calls["unknown_text"])
	assert.Equal(t, 1, rec.calls["unknown_media"])
}

func TestChannelRoute(t *testing.T) {
	bot := newBot(t)
	rec := &recorder{calls: map[string]int{}}
	reg := tg.NewRegistry()
	reg.RegisterCommand("/id", commands.Command{Handler: rec.handler("id"), Description: "id", Channel: true})
	reg.RegisterCommand("/upload", commands.Command{Handler: rec.handler("upload"), Description: "upload"})

	h := ChannelRoute(reg).Handler
	post := func(text string) tele.Context {
		return bot.NewContext(tele.Update{ID: 3, ChannelPost: &tele.Message{
			Chat: &tele.Chat{ID: -1001, Type: tele.ChatChannel, Title: "News"},
			Text: text,
		}})
	}

	require.NoError(t, h(post("/id@CaptionRelayBot")))
	require.NoError(t, h(post("/upload")))
	require.NoError(t, h(post("just a post")))

	assert.Equal(t, 1, rec.calls["id"])
	assert.Zero(t, rec.calls["upload"])
}

func TestCallbackRoute(t *testing.T) {
	bot := newBot(t)
	rec := &recorder{calls: map[string]int{}}
	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCallback("relay_upload", rec.handler("upload")))

	h := CallbackRoute(reg, CallbackOptionsFrom(fallbacks(rec))).Handler
	press := func(data string) tele.Context {
		return bot.NewContext(tele.Update{ID: 4, Callback: &tele.Callback{
			ID:     "cb",
			Sender: &tele.User{ID: 10},
			Data:   data,
		}})
	}

	require.NoError(t, h(press("\frelay_upload")))
	require.NoError(t, h(press("\frelay_gone|x")))

	assert.Equal(t, 1, rec.calls["upload"])
	assert.Equal(t, 1, rec.calls["unknown_callback"])
}

func TestHandlerNameAndErrorCode(t *testing.T) {
	assert.Equal(t, "upload_now", handlerName(" /Upload Now "))
	assert.Equal(t, "unknown", handlerName("/"))

	assert.Equal(t, "FLOOD", errorCode(tele.FloodError{RetryAfter: 3}))
	assert.Equal(t, "API_400", errorCode(fmt.Errorf("send: %w", &tele.Error{Code: 400, Description: "bad"})))
	assert.Equal(t, "ERRORSTRING", errorCode(errors.New("boom")))
}
