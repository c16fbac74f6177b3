package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdown(t *testing.T) {
	v1, err := EscapeMarkdown("my_channel *news* [x]", MarkdownV1)
	require.NoError(t, err)
	assert.Equal(t, `my\_channel \*news\* \[x]`, v1)

	v2, err := EscapeMarkdown("a.b-c!", MarkdownV2)
	require.NoError(t, err)
	assert.Equal(t, `a\.b\-c\!`, v2)

	_, err = EscapeMarkdown("x", 3)
	require.Error(t, err)
}

func TestCode(t *testing.T) {
	assert.Equal(t, "`-1001234`", Code("-1001234"))
	assert.Equal(t, "`ab`", Code("a`b"))
	assert.Equal(t, `Tech \_Talk`, Escape("Tech _Talk"))
}
