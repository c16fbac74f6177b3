package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/captionrelay/core/logger"
)

func newContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()
	bot, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return bot.NewContext(upd)
}

func TestBuildContextCachesMetadata(t *testing.T) {
	c := newContext(t, tele.Update{
		ID: 5,
		Message: &tele.Message{
			Sender: &tele.User{ID: 10},
			Chat:   &tele.Chat{ID: 10, Type: tele.ChatPrivate},
		},
	})

	_, ok := ContextFrom(c)
	assert.False(t, ok)

	ctx := BuildContext(c)
	assert.Equal(t, "5:10:10", logger.RIDFrom(ctx))
	assert.Equal(t, int64(10), logger.UserIDFrom(ctx))

	stored, ok := ContextFrom(c)
	require.True(t, ok)
	assert.Equal(t, ctx, stored)

	named := WithHandler(c, "cmd_start")
	assert.Equal(t, "cmd_start", logger.HandlerFrom(named))
	assert.Equal(t, "cmd_start", logger.HandlerFrom(BuildContext(c)))
}

func TestChatKey(t *testing.T) {
	private := newContext(t, tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: 3},
		Chat:   &tele.Chat{ID: 3},
	}})
	assert.Equal(t, int64(3), ChatKey(private))

	cb := newContext(t, tele.Update{Callback: &tele.Callback{Sender: &tele.User{ID: 4}}})
	assert.Equal(t, int64(4), ChatKey(cb))
}
