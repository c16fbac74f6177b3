package relay

import (
	"regexp"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Kind is the media kind of a relayed item.
type Kind string

const (
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// Item is a single media file referenced by its platform file id.
// Files are never downloaded; only the reference travels.
type Item struct {
	Kind    Kind
	FileID  string
	Caption string

	// SourceChat and SourceMessageID locate the inbound message for the
	// optional post-success delete. Zero means unknown.
	SourceChat      int64
	SourceMessageID int
}

// ItemFromMessage extracts the video or document carried by m.
// Video wins when both are present.
func ItemFromMessage(m *tele.Message) (Item, error) {
	if m == nil {
		return Item{}, ErrNoMedia
	}
	item := Item{Caption: m.Caption, SourceMessageID: m.ID}
	if m.Chat != nil {
		item.SourceChat = m.Chat.ID
	}
	switch {
	case m.Video != nil && m.Video.FileID != "":
		item.Kind = KindVideo
		item.FileID = m.Video.FileID
	case m.Document != nil && m.Document.FileID != "":
		item.Kind = KindDocument
		item.FileID = m.Document.FileID
	default:
		return Item{}, ErrNoMedia
	}
	return item, nil
}

// sendable builds the outbound media value for caption.
func (i Item) sendable(caption string) (tele.Sendable, error) {
	file := tele.File{FileID: i.FileID}
	switch i.Kind {
	case KindVideo:
		return &tele.Video{File: file, Caption: caption}, nil
	case KindDocument:
		return &tele.Document{File: file, Caption: caption}, nil
	}
	return nil, ErrNoMedia
}

// Destination is a target chat given as a numeric id or an @handle.
type Destination string

// Recipient implements tele.Recipient.
func (d Destination) Recipient() string { return string(d) }

func (d Destination) String() string { return string(d) }

var (
	numericChat = regexp.MustCompile(`^-?[0-9]+$`)
	chatHandle  = regexp.MustCompile(`^@[A-Za-z][A-Za-z0-9_]{3,31}$`)
)

// ParseDestination validates a channel identifier entered by the user.
func ParseDestination(raw string) (Destination, error) {
	s := strings.TrimSpace(raw)
	if numericChat.MatchString(s) || chatHandle.MatchString(s) {
		return Destination(s), nil
	}
	return "", ErrInvalidDestination
}
