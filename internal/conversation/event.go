package conversation

import (
	"strings"

	"github.com/m3rciful/captionrelay/internal/relay"

	tele "gopkg.in/telebot.v4"
)

// EventKind tags the shape of an inbound message.
type EventKind int

const (
	EventOther EventKind = iota
	EventText
	EventVideo
	EventDocument
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventVideo:
		return "video"
	case EventDocument:
		return "document"
	}
	return "other"
}

// Event is an inbound message reduced to what the state handlers match on.
type Event struct {
	Kind EventKind
	// Text is the trimmed message text for EventText.
	Text string
	// Item is the media for EventVideo and EventDocument.
	Item relay.Item
}

// IsMedia reports whether the event carries a relayable file.
func (e Event) IsMedia() bool {
	return e.Kind == EventVideo || e.Kind == EventDocument
}

// EventFrom classifies m. Commands are never text events.
func EventFrom(m *tele.Message) Event {
	if m == nil {
		return Event{Kind: EventOther}
	}
	if item, err := relay.ItemFromMessage(m); err == nil {
		kind := EventDocument
		if item.Kind == relay.KindVideo {
			kind = EventVideo
		}
		return Event{Kind: kind, Item: item}
	}
	if m.Text != "" && !strings.HasPrefix(m.Text, "/") {
		return Event{Kind: EventText, Text: strings.TrimSpace(m.Text)}
	}
	return Event{Kind: EventOther}
}
