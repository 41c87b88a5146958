package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/flemzord/wirebot/pkg/wire"
)

// GetMe fetches the bot's own user and caches it for Identity.
func (b *Bot) GetMe(ctx context.Context) (User, error) {
	body := b.engine.Get(ctx, b.path("getMe", nil))
	b.engine.Close()

	user, err := decodeResult[User](body)
	if err != nil {
		return User{}, fmt.Errorf("bot: getMe: %w", err)
	}
	b.identity.Store(&user)
	return user, nil
}

// GetFile resolves a file id into its download URL and size.
func (b *Bot) GetFile(ctx context.Context, fileID string) (File, error) {
	body := b.engine.Get(ctx, b.path("getFile", url.Values{"file_id": {fileID}}))
	b.engine.Close()

	f, err := decodeResult[File](body)
	if err != nil {
		return File{}, fmt.Errorf("bot: getFile: %w", err)
	}
	if f.FilePath == "" {
		return File{}, fmt.Errorf("bot: getFile: %w: file_path", ErrMissingField)
	}
	f.URL = fmt.Sprintf("https://%s/file/bot%s/%s", b.cfg.Host, b.token, f.FilePath)
	return f, nil
}

// SetMyCommands replaces the bot command menu.
func (b *Bot) SetMyCommands(ctx context.Context, commands []Command) error {
	payload := commandsPayload{Commands: commands}
	_, err := b.send(ctx, "setMyCommands", func() string {
		return b.engine.PostJSON(ctx, b.path("setMyCommands", nil), payload)
	})
	return err
}

// SendSimpleMessage sends text with a GET request, the smallest request the
// API accepts.
func (b *Bot) SendSimpleMessage(ctx context.Context, chatID, text, parseMode string) error {
	if text == "" {
		return fmt.Errorf("bot: sendMessage: %w: text", ErrMissingField)
	}
	q := url.Values{
		"chat_id":    {chatID},
		"text":       {text},
		"parse_mode": {parseMode},
	}
	_, err := b.send(ctx, "sendMessage", func() string {
		return b.engine.Get(ctx, b.path("sendMessage", q))
	})
	return err
}

// SendMessage sends req.Text, or edits message req.MessageID when it is set.
func (b *Bot) SendMessage(ctx context.Context, req SendMessageRequest) error {
	return b.postMessage(ctx, messagePayload{
		ChatID:                req.ChatID,
		Text:                  req.Text,
		MessageID:             req.MessageID,
		ParseMode:             req.ParseMode,
		DisableWebPagePreview: req.DisableWebPagePreview,
		DisableNotification:   req.DisableNotification,
	})
}

// SendMessageWithReplyKeyboard sends text with a reply keyboard, or removes
// the current keyboard when req.Keyboard is empty.
func (b *Bot) SendMessageWithReplyKeyboard(ctx context.Context, req ReplyKeyboardRequest) error {
	markup := &replyMarkup{
		Resize:    req.Resize,
		OneTime:   req.OneTime,
		Selective: req.Selective,
	}
	if len(req.Keyboard) == 0 {
		markup.RemoveKeyboard = true
	} else {
		markup.Keyboard = req.Keyboard
	}
	return b.postMessage(ctx, messagePayload{
		ChatID:      req.ChatID,
		Text:        req.Text,
		ParseMode:   req.ParseMode,
		ReplyMarkup: markup,
	})
}

// SendMessageWithInlineKeyboard sends text with an inline keyboard, or
// edits message req.MessageID when it is set.
func (b *Bot) SendMessageWithInlineKeyboard(ctx context.Context, req InlineKeyboardRequest) error {
	return b.postMessage(ctx, messagePayload{
		ChatID:      req.ChatID,
		Text:        req.Text,
		MessageID:   req.MessageID,
		ParseMode:   req.ParseMode,
		ReplyMarkup: &replyMarkup{InlineKeyboard: req.Keyboard},
	})
}

func (b *Bot) postMessage(ctx context.Context, payload messagePayload) error {
	method := "sendMessage"
	if payload.MessageID != 0 {
		method = "editMessageText"
	}
	if payload.Text == "" {
		return fmt.Errorf("bot: %s: %w: text", method, ErrMissingField)
	}
	_, err := b.send(ctx, method, func() string {
		return b.engine.PostJSON(ctx, b.path(method, nil), payload)
	})
	return err
}

// DeleteMessage deletes a message. It makes a single attempt.
func (b *Bot) DeleteMessage(ctx context.Context, chatID string, messageID int) error {
	if messageID == 0 {
		return fmt.Errorf("bot: deleteMessage: %w", ErrNoMessageID)
	}
	body := b.engine.PostJSON(ctx, b.path("deleteMessage", nil), deletePayload{ChatID: chatID, MessageID: messageID})
	b.engine.Close()

	err := b.checkOK(body)
	b.observer.ObserveSend("deleteMessage", 1, err)
	if err != nil {
		return fmt.Errorf("bot: deleteMessage: %w", err)
	}
	return nil
}

// SendChatAction broadcasts a chat action such as "typing".
func (b *Bot) SendChatAction(ctx context.Context, chatID, action string) error {
	if action == "" {
		return fmt.Errorf("bot: sendChatAction: %w: action", ErrMissingField)
	}
	q := url.Values{"chat_id": {chatID}, "action": {action}}
	_, err := b.send(ctx, "sendChatAction", func() string {
		return b.engine.Get(ctx, b.path("sendChatAction", q))
	})
	return err
}

// SendPhoto sends a photo by URL or file id and returns the raw response.
func (b *Bot) SendPhoto(ctx context.Context, req SendPhotoRequest) (string, error) {
	if req.Photo == "" {
		return "", fmt.Errorf("bot: sendPhoto: %w: photo", ErrMissingField)
	}
	payload := photoPayload{
		ChatID:              req.ChatID,
		Photo:               req.Photo,
		Caption:             req.Caption,
		DisableNotification: req.DisableNotification,
		ReplyToMessageID:    req.ReplyToMessageID,
	}
	if len(req.Keyboard) > 0 {
		payload.ReplyMarkup = &replyMarkup{Keyboard: req.Keyboard}
	}
	return b.send(ctx, "sendPhoto", func() string {
		return b.engine.PostJSON(ctx, b.path("sendPhoto", nil), payload)
	})
}

// SendPhotoByBinary uploads size bytes of image data from payload and
// returns the raw response.
func (b *Bot) SendPhotoByBinary(ctx context.Context, chatID, contentType string, size int, payload wire.Payload) (string, error) {
	return b.SendFile(ctx, "sendPhoto", wire.Upload{
		Field:       "photo",
		FileName:    "img.jpg",
		ContentType: contentType,
		ChatID:      chatID,
		Size:        size,
		Payload:     payload,
	})
}

// SendFile uploads a file to method (sendDocument, sendAudio, ...) as
// multipart form data and returns the raw response. A payload can only be
// streamed once, so a single attempt is made.
func (b *Bot) SendFile(ctx context.Context, method string, up wire.Upload) (string, error) {
	body := b.engine.PostMultipart(ctx, b.path(method, nil), up)

	err := b.checkOK(body)
	b.observer.ObserveSend(method, 1, err)
	if err != nil {
		return body, fmt.Errorf("bot: %s: %w", method, err)
	}
	return body, nil
}

// AnswerCallbackQuery acknowledges a callback query. It makes a single attempt.
func (b *Bot) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackRequest) error {
	if req.QueryID == "" {
		return fmt.Errorf("bot: answerCallbackQuery: %w: callback_query_id", ErrMissingField)
	}
	body := b.engine.PostJSON(ctx, b.path("answerCallbackQuery", nil), callbackAnswerPayload{
		CallbackQueryID: req.QueryID,
		ShowAlert:       req.ShowAlert,
		CacheTime:       req.CacheTime,
		Text:            req.Text,
		URL:             req.URL,
	})
	b.engine.Close()

	err := b.checkOK(body)
	b.observer.ObserveSend("answerCallbackQuery", 1, err)
	if err != nil {
		return fmt.Errorf("bot: answerCallbackQuery: %w", err)
	}
	return nil
}

// send repeats attempt until the API acknowledges it or SendTimeout has
// elapsed on the session clock, then closes the transport. Attempts are
// paced by the retry limiter. It returns the last response body.
func (b *Bot) send(ctx context.Context, method string, attempt func() string) (string, error) {
	defer b.engine.Close()

	var (
		body     string
		err      error = ErrConnect
		attempts int
	)
	start := b.clock.Now()
	for b.clock.Now().Sub(start) < b.cfg.SendTimeout {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}
		b.pace()

		attempts++
		body = attempt()
		err = b.checkOK(body)
		if err == nil {
			break
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.permanent() {
				break
			}
			if apiErr.RetryAfter > 0 {
				wait := time.Duration(apiErr.RetryAfter) * time.Second
				if b.clock.Now().Sub(start)+wait >= b.cfg.SendTimeout {
					break
				}
				b.clock.Sleep(wait)
			}
		}
		b.logger.Debug("bot: send attempt failed", "method", method, "attempt", attempts, "error", err)
	}

	b.observer.ObserveSend(method, attempts, err)
	if err != nil {
		b.logger.Warn("bot: send failed", "method", method, "attempts", attempts, "error", err)
		return body, fmt.Errorf("bot: %s: %w", method, err)
	}
	return body, nil
}

// pace waits on the session clock until the retry limiter grants an attempt.
func (b *Bot) pace() {
	now := b.clock.Now()
	r := b.limiter.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		b.clock.Sleep(d)
	}
}

// decodeResult decodes a response envelope and returns its result.
func decodeResult[T any](body string) (T, error) {
	var zero T
	if body == "" {
		return zero, ErrConnect
	}
	var resp APIResponse[T]
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		if len(body) < minBodyLen {
			return zero, ErrPartialBody
		}
		return zero, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if !resp.OK {
		return zero, resp.apiError()
	}
	return resp.Result, nil
}

// ChatID formats a numeric chat id for the send helpers.
func ChatID(id int64) string { return strconv.FormatInt(id, 10) }
