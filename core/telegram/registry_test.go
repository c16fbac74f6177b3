package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/captionrelay/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestCommandName(t *testing.T) {
	cases := map[string]string{
		"/start":               "/start",
		"/ID@CaptionRelayBot":  "/id",
		"  /id @somechannel  ": "/id",
		"":                     "",
		"hello world":          "hello",
	}
	for in, want := range cases {
		assert.Equal(t, want, CommandName(in), in)
	}
}

func TestCommandArgs(t *testing.T) {
	assert.Equal(t, []string{"@chan", "x"}, CommandArgs("/id@bot @chan x"))
	assert.Nil(t, CommandArgs("/id"))
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCommand("/upload", commands.Command{Handler: noop, Description: "upload", Aliases: []string{"send"}}))
	require.NoError(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "start", Channel: true}))
	require.NoError(t, reg.RegisterCommand("/stats", commands.Command{Handler: noop, Description: "stats", AdminOnly: true}))
	assert.ErrorIs(t, reg.RegisterCommand("nope", commands.Command{Handler: noop, Description: "no slash"}), ErrInvalidRegistration)
	assert.ErrorIs(t, reg.RegisterCommand("/empty", commands.Command{Description: "no handler"}), ErrInvalidRegistration)
	assert.ErrorIs(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "again"}), ErrDuplicateRegistration)

	key, _, ok := reg.LookupCommand("/upload@bot now")
	require.True(t, ok)
	assert.Equal(t, "/upload", key)

	key, _, ok = reg.LookupCommand("send")
	require.True(t, ok)
	assert.Equal(t, "/upload", key)

	_, _, ok = reg.LookupCommand("/nope")
	assert.False(t, ok)
	_, _, ok = reg.LookupCommand("/empty")
	assert.False(t, ok)

	var nilReg *Registry
	_, _, ok = nilReg.LookupCommand("/start")
	assert.False(t, ok)

	assert.Len(t, reg.Commands(), 3)
	assert.Equal(t, []tele.Command{
		{Text: "/start", Description: "start"},
		{Text: "/upload", Description: "upload"},
	}, reg.ListCommands(true))

	channel := reg.ChannelCommands()
	assert.Len(t, channel, 1)
	assert.Contains(t, channel, "/start")
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCallback("relay_upload", noop))
	assert.ErrorIs(t, reg.RegisterCallback("relay_upload", noop), ErrDuplicateRegistration)
	assert.ErrorIs(t, reg.RegisterCallback("", noop), ErrInvalidRegistration)

	_, ok := reg.GetCallback("relay_upload")
	assert.True(t, ok)
	_, ok = reg.GetCallback("relay_clear")
	assert.False(t, ok)
	assert.Equal(t, []string{"relay_upload"}, reg.ListCallbacks())
}
