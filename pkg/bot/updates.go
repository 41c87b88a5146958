package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/buger/jsonparser"
)

const (
	// minBodyLen is the shortest body that can be a response at all.
	minBodyLen = 2
	// maxSkipDepth bounds consecutive oversized-update skips within one poll.
	maxSkipDepth = 16
)

// GetUpdates polls for updates starting at offset, decodes them into the
// record buffer returned by Messages and returns how many were new.
// Failures are logged and reported to the Observer; they yield 0.
//
// The transport is left open after a poll that delivered updates so the
// caller can answer on the same connection, and closed otherwise.
func (b *Bot) GetUpdates(ctx context.Context, offset int64) int {
	b.messages = b.messages[:0]
	for m := range b.Updates(ctx, offset) {
		b.messages = append(b.messages, m)
	}
	return len(b.messages)
}

// Updates polls once and returns the decoded records as a lazy sequence.
// Each record is decoded, document metadata included, only when the caller
// pulls it, and the watermark advances as records are yielded. The sequence
// is finite, holds at most MaxMessages records and can be ranged over once;
// later ranges yield nothing.
func (b *Bot) Updates(ctx context.Context, offset int64) iter.Seq[Message] {
	var used atomic.Bool
	return func(yield func(Message) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}

		elements := b.fetch(ctx, offset, 0)
		delivered := 0
		defer func() { b.observer.ObservePoll(delivered) }()

		for _, raw := range elements {
			if delivered >= b.cfg.MaxMessages {
				return
			}
			msg, ok := b.decode(ctx, raw)
			if !ok {
				continue
			}
			delivered++
			if !yield(msg) {
				return
			}
		}
	}
}

func (b *Bot) updatesPath(offset int64) string {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("limit", strconv.Itoa(b.cfg.MaxMessages))
	if b.cfg.LongPoll > 0 {
		q.Set("timeout", strconv.Itoa(int(b.cfg.LongPoll/time.Second)))
	}
	return b.path("getUpdates", q)
}

// fetch performs the getUpdates exchange and returns the raw result
// elements. It handles every failure locally.
func (b *Bot) fetch(ctx context.Context, offset int64, depth int) []json.RawMessage {
	body := b.engine.Get(ctx, b.updatesPath(offset))
	if body == "" {
		b.logger.Debug("bot: empty response", "offset", offset)
		b.engine.Close()
		b.observer.ObserveFailure(ErrConnect)
		return nil
	}

	var env updatesEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		b.engine.Close()

		switch {
		case len(body) < minBodyLen:
			b.logger.Warn("bot: response too short, connection glitch", "body_bytes", len(body))
			b.observer.ObserveFailure(ErrPartialBody)
		case len(body) == b.engine.MaxBody():
			b.observer.ObserveFailure(ErrOversized)
			skipped := b.oversizedUpdateID(body)
			if depth >= maxSkipDepth {
				b.logger.Warn("bot: too many oversized updates in a row", "update_id", skipped)
				return nil
			}
			b.advance(skipped)
			b.logger.Warn("bot: update too large for buffer, skipped",
				"update_id", skipped,
				"max_body_bytes", b.engine.MaxBody(),
			)
			return b.fetch(ctx, b.LastUpdateID()+1, depth+1)
		default:
			b.logger.Warn("bot: failed to parse updates", "body_bytes", len(body), "error", err)
			b.observer.ObserveFailure(ErrParse)
		}
		return nil
	}

	if len(env.Result) == 0 {
		b.logger.Debug("bot: no new updates", "offset", offset)
		b.engine.Close()
		return nil
	}
	return env.Result
}

// oversizedUpdateID recovers the id of the first update from a truncated
// body. When the prefix does not hold it, the next id after the watermark
// is assumed.
func (b *Bot) oversizedUpdateID(body string) int64 {
	next := b.LastUpdateID() + 1
	data := []byte(body)

	id, err := jsonparser.GetInt(data, "result", "[0]", "update_id")
	if err != nil {
		// The first element is usually cut off too, so path lookup fails;
		// fall back to the first update_id key in the prefix.
		id, err = scanUpdateID(data)
	}
	if err != nil || id < next {
		return next
	}
	return id
}

var updateIDKey = []byte(`"update_id"`)

func scanUpdateID(data []byte) (int64, error) {
	i := bytes.Index(data, updateIDKey)
	if i < 0 {
		return 0, ErrMissingField
	}
	rest := bytes.TrimLeft(data[i+len(updateIDKey):], " \t\r\n:")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 || end == len(rest) {
		// No digits, or the number may itself be truncated.
		return 0, ErrMissingField
	}
	return jsonparser.ParseInt(rest[:end])
}

// advance raises the watermark to id.
func (b *Bot) advance(id int64) {
	if id > b.lastUpdate.Load() {
		b.lastUpdate.Store(id)
	}
}

// decode turns one result element into a record. Elements whose id is not
// above the watermark have been delivered already and are skipped.
func (b *Bot) decode(ctx context.Context, raw json.RawMessage) (Message, bool) {
	var u rawUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		b.logger.Warn("bot: failed to decode update", "error", err)
		b.observer.ObserveFailure(ErrParse)
		return Message{}, false
	}
	if u.UpdateID == nil {
		b.logger.Warn("bot: update without update_id")
		b.observer.ObserveFailure(ErrMissingField)
		return Message{}, false
	}

	id := *u.UpdateID
	if id <= b.LastUpdateID() {
		b.logger.Debug("bot: duplicate update skipped", "update_id", id, "watermark", b.LastUpdateID())
		return Message{}, false
	}
	b.advance(id)

	msg := Message{UpdateID: id}
	switch {
	case u.Message != nil:
		msg.Type = TypeMessage
		fillMessage(&msg, u.Message)
		m := u.Message
		switch {
		case m.Text != nil:
			msg.Text = *m.Text
		case m.Location != nil:
			loc := *m.Location
			msg.Location = &loc
		case m.Document != nil:
			msg.Document = b.resolveDocument(ctx, m)
		case m.Contact != nil:
			msg.Contact = &Contact{
				PhoneNumber: m.Contact.PhoneNumber,
				FirstName:   m.Contact.FirstName,
				UserID:      m.Contact.UserID,
			}
		}
		fillReply(&msg, m)

	case u.ChannelPost != nil:
		msg.Type = TypeChannelPost
		p := u.ChannelPost
		msg.MessageID = p.MessageID
		msg.ChatID = p.Chat.ID
		msg.ChatTitle = p.Chat.Title
		msg.Date = p.Date
		if p.Text != nil {
			msg.Text = *p.Text
		}

	case u.CallbackQuery != nil:
		msg.Type = TypeCallbackQuery
		q := u.CallbackQuery
		msg.QueryID = q.ID
		msg.Text = q.Data
		if q.From != nil {
			msg.FromID = q.From.ID
			msg.FromName = q.From.FirstName
		}
		if q.Message != nil {
			msg.ChatID = q.Message.Chat.ID
			msg.MessageID = q.Message.MessageID
			if q.Message.Text != nil {
				msg.ReplyTo = &ReplyTo{Text: *q.Message.Text}
			}
		}

	case u.EditedMessage != nil:
		msg.Type = TypeEditedMessage
		fillMessage(&msg, u.EditedMessage)
		m := u.EditedMessage
		switch {
		case m.Text != nil:
			msg.Text = *m.Text
		case m.Location != nil:
			loc := *m.Location
			msg.Location = &loc
		}
		fillReply(&msg, m)

	default:
		b.logger.Debug("bot: update of unhandled kind", "update_id", id)
	}
	return msg, true
}

func fillMessage(msg *Message, m *rawMessage) {
	msg.MessageID = m.MessageID
	msg.ChatID = m.Chat.ID
	msg.ChatTitle = m.Chat.Title
	msg.Date = m.Date
	if m.From != nil {
		msg.FromID = m.From.ID
		msg.FromName = m.From.FirstName
	}
}

func fillReply(msg *Message, m *rawMessage) {
	if r := m.ReplyToMessage; r != nil {
		msg.ReplyTo = &ReplyTo{MessageID: r.MessageID}
		if r.Text != nil {
			msg.ReplyTo.Text = *r.Text
		}
	}
}

// resolveDocument fetches the download path and size of an attached file
// before the record is handed out.
func (b *Bot) resolveDocument(ctx context.Context, m *rawMessage) *Document {
	doc := &Document{
		FileID:   m.Document.FileID,
		FileName: m.Document.FileName,
		Caption:  m.Caption,
	}
	f, err := b.GetFile(ctx, doc.FileID)
	if err != nil {
		b.logger.Warn("bot: document metadata unavailable", "file_id", doc.FileID, "error", err)
		return doc
	}
	doc.Resolved = true
	doc.FilePath = f.URL
	doc.FileSize = f.FileSize
	return doc
}
