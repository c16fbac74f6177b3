package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/captionrelay/core/telegram/format"
	"github.com/m3rciful/captionrelay/internal/relay"
)

const (
	msgWelcome = "👋 Hi! I replace a word in your captions and post the file to your channel.\n\n" +
		"First, send the word to remove (for example: @OldName)."
	msgAskAdd     = "✅ Got the word to remove.\nNow send the word to put in its place."
	msgAskChannel = "✅ Got the replacement word.\nNow send the channel ID to upload to (for example -1001234567890 or @mychannel).\n\n" +
		"👉 Hint: add me to your channel and run /start there to see its ID."
	msgInvalidChannel = "⚠️ That does not look like a channel ID. Send a number such as -1001234567890 or a handle such as @mychannel."
	msgReadyInstant   = "✅ Channel set!\nNow send a video or document with a caption. Each file is posted right away. Send /done when finished."
	msgReadyBatch     = "✅ Channel set!\nNow send videos or documents with captions. They are queued; send /upload to post them all in order."
	msgSendMedia      = "Send a video or document, or /upload to post the queue."
	msgSendMediaNow   = "Send a video or document, or /done to finish."
	msgNotConfigured  = "⚠️ I need the caption rule first. Answer the question above, or /cancel to start over."
	msgNoSession      = "Send /start to set up a caption rule and target channel."
	msgNoChannel      = "⚠️ No target channel yet. Send /start to set one up."
	msgEmptyQueue     = "📭 No media queued. Send videos or documents first."
	msgQueueFull      = "⚠️ The queue is full (%d files). Send /upload to post them first."
	msgQueueCleared   = "🗑 Queue cleared."
	msgCancelled      = "❌ Cancelled. Send /start to begin again."
	msgFinished       = "👍 Done. Send /start to set up a new rule."
	msgNothingToDo    = "Nothing to do here."
	msgSent           = "✅ File sent successfully!"
	msgIDHint         = "🆔 Your chat ID: %s\n\nTo get a channel ID, run /id in the channel or send /id @channelname here."
	msgIDFailed       = "⚠️ Could not find %s: %s"
	msgAdminOnly      = "⛔ This command is for the bot admin."
	msgHelp           = "I relay videos and documents to your channel with one word of the caption replaced.\n\n" +
		"/start - set up the caption rule and channel\n" +
		"/upload - post queued files in order\n" +
		"/done - finish the session\n" +
		"/status - show the current setup\n" +
		"/cancel - discard the current setup\n" +
		"/id - show a chat or channel ID"
)

func queuedText(n, limit int) string {
	return fmt.Sprintf("📥 Queued %d/%d. Send more, or tap Upload.", n, limit)
}

func uploadingText(n int, dest relay.Destination) string {
	return fmt.Sprintf("⏫ Uploading %d file(s) to %s…", n, dest)
}

func itemFailedText(pos int, res relay.Result) string {
	return fmt.Sprintf("⚠️ File %d failed: %s", pos, res.Reason())
}

func tallyText(rep relay.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Uploaded %d/%d", rep.Succeeded, rep.Total)
	if rep.Failed > 0 {
		fmt.Fprintf(&b, ", %d failed", rep.Failed)
	}
	if rep.Skipped > 0 {
		fmt.Fprintf(&b, ", %d not attempted", rep.Skipped)
	}
	b.WriteString(".")
	return b.String()
}

func relayFailedText(res relay.Result) string {
	if errors.Is(res.Err, relay.ErrFloodLimit) {
		return "⏳ Telegram is rate limiting uploads: " + res.Reason()
	}
	return "⚠️ Error: " + res.Reason()
}

// chatInfoText is sent with Markdown parse mode.
func chatInfoText(title string, id int64, channel bool) string {
	label := "Chat"
	if channel {
		label = "Channel"
	}
	text := fmt.Sprintf("📢 %s name: %s\n🆔 %s ID: %s", label, format.Escape(title), label, format.Code(fmt.Sprint(id)))
	if channel {
		text += "\n\nSend this ID to me in the private chat where you ran /start."
	}
	return text
}

func statusText(st string, d Draft, mode string, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Step: %s\n", st)
	fmt.Fprintf(&b, "Remove: %s\n", orDash(d.RemoveWord))
	fmt.Fprintf(&b, "Add: %s\n", orDash(d.AddWord))
	fmt.Fprintf(&b, "Channel: %s\n", orDash(string(d.Channel)))
	fmt.Fprintf(&b, "Mode: %s", mode)
	if mode == ModeBatch {
		fmt.Fprintf(&b, "\nQueue: %d/%d", len(d.Queue), limit)
	}
	return b.String()
}

func statsText(sessions int, relayed, failed, floods int64) string {
	return fmt.Sprintf("📈 Active conversations: %d\nRelayed: %d\nFailed: %d\nFlood waits: %d", sessions, relayed, failed, floods)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
