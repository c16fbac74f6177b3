package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/captionrelay/internal/relay"
)

func TestEventFrom(t *testing.T) {
	cases := []struct {
		name string
		msg  *tele.Message
		kind EventKind
	}{
		{name: "nil", msg: nil, kind: EventOther},
		{name: "text", msg: &tele.Message{Text: " hi "}, kind: EventText},
		{name: "command", msg: &tele.Message{Text: "/start"}, kind: EventOther},
		{name: "video", msg: &tele.Message{Video: &tele.Video{File: tele.File{FileID: "v"}}}, kind: EventVideo},
		{name: "document", msg: &tele.Message{Document: &tele.Document{File: tele.File{FileID: "d"}}}, kind: EventDocument},
		{name: "photo", msg: &tele.Message{Photo: &tele.Photo{}}, kind: EventOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := EventFrom(tc.msg)
			assert.Equal(t, tc.kind, ev.Kind)
			assert.Equal(t, tc.kind == EventVideo || tc.kind == EventDocument, ev.IsMedia())
		})
	}

	ev := EventFrom(&tele.Message{Text: "  @OldName  "})
	assert.Equal(t, "@OldName", ev.Text)

	ev = EventFrom(&tele.Message{Caption: "cap", Document: &tele.Document{File: tele.File{FileID: "d"}}})
	assert.Equal(t, relay.Item{Kind: relay.KindDocument, FileID: "d", Caption: "cap"}, ev.Item)
	assert.Equal(t, "document", ev.Kind.String())
}
