package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInline(t *testing.T) {
	markup := Inline(
		[]Button{{Text: "Upload", Unique: "relay_upload"}, {Text: "Clear", Unique: "relay_clear"}},
		[]Button{{Text: "Status", Unique: "relay_status", Data: "x"}},
	)
	require.Len(t, markup.InlineKeyboard, 2)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, "Upload", markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "relay_upload", markup.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "relay_clear", markup.InlineKeyboard[0][1].Unique)
	assert.Equal(t, "x", markup.InlineKeyboard[1][0].Data)
}

func TestRemove(t *testing.T) {
	assert.True(t, Remove().RemoveKeyboard)
}
