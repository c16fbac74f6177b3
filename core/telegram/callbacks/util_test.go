package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		key     string
		payload string
	}{
		{name: "telebot encoding", data: "\frelay_upload|now", key: "relay_upload", payload: "now"},
		{name: "no payload", data: "\frelay_clear", key: "relay_clear"},
		{name: "raw data", data: "relay_clear|", key: "relay_clear"},
		{name: "empty", data: "", key: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, payload := ParseCallbackData(&tele.Callback{Data: tc.data})
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.payload, payload)
		})
	}
}

func TestKeyPrefersUnique(t *testing.T) {
	cb := &tele.Callback{Unique: "relay_upload", Data: "\fother|x"}
	assert.Equal(t, "relay_upload", Key(cb))
	assert.Equal(t, "relay_clear", Key(&tele.Callback{Data: "\frelay_clear|1"}))
	assert.Equal(t, "", Key(nil))
}
