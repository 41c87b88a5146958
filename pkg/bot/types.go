package bot

import "encoding/json"

// APIResponse is the envelope every Bot API method answers with.
type APIResponse[T any] struct {
	OK          bool                `json:"ok"`
	Result      T                   `json:"result"`
	Description string              `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters explains why a request was unsuccessful.
type ResponseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

func (r APIResponse[T]) apiError() *APIError {
	err := &APIError{Code: r.ErrorCode, Description: r.Description}
	if r.Parameters != nil {
		err.RetryAfter = r.Parameters.RetryAfter
	}
	return err
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// File is the metadata returned by getFile. URL is the download location
// and embeds the bot token.
type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	URL      string `json:"-"`
}

// Command is one entry of the bot command menu.
type Command struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// KeyboardButton is one button of a reply keyboard.
type KeyboardButton struct {
	Text            string `json:"text"`
	RequestContact  bool   `json:"request_contact,omitempty"`
	RequestLocation bool   `json:"request_location,omitempty"`
}

// InlineKeyboardButton is one button of an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// SendMessageRequest is the input of SendMessage. A non-zero MessageID edits
// that message instead of sending a new one.
type SendMessageRequest struct {
	ChatID                string
	Text                  string
	ParseMode             string
	MessageID             int
	DisableWebPagePreview bool
	DisableNotification   bool
}

// ReplyKeyboardRequest sends text with a custom reply keyboard. An empty
// Keyboard removes any keyboard currently shown.
type ReplyKeyboardRequest struct {
	ChatID    string
	Text      string
	ParseMode string
	Keyboard  [][]KeyboardButton
	Resize    bool
	OneTime   bool
	Selective bool
}

// InlineKeyboardRequest sends text with an inline keyboard. A non-zero
// MessageID edits that message instead.
type InlineKeyboardRequest struct {
	ChatID    string
	Text      string
	ParseMode string
	Keyboard  [][]InlineKeyboardButton
	MessageID int
}

// SendPhotoRequest sends a photo by URL or file id.
type SendPhotoRequest struct {
	ChatID              string
	Photo               string
	Caption             string
	DisableNotification bool
	ReplyToMessageID    int
	Keyboard            [][]KeyboardButton
}

// AnswerCallbackRequest acknowledges a callback query.
type AnswerCallbackRequest struct {
	QueryID   string
	Text      string
	ShowAlert bool
	URL       string
	CacheTime int
}

// Wire payloads.

type messagePayload struct {
	ChatID                string       `json:"chat_id"`
	Text                  string       `json:"text"`
	MessageID             int          `json:"message_id,omitempty"`
	ParseMode             string       `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview,omitempty"`
	DisableNotification   bool         `json:"disable_notification,omitempty"`
	ReplyMarkup           *replyMarkup `json:"reply_markup,omitempty"`
}

type replyMarkup struct {
	Keyboard       [][]KeyboardButton       `json:"keyboard,omitempty"`
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard,omitempty"`
	RemoveKeyboard bool                     `json:"remove_keyboard,omitempty"`
	Resize         bool                     `json:"resize_keyboard,omitempty"`
	OneTime        bool                     `json:"one_time_keyboard,omitempty"`
	Selective      bool                     `json:"selective,omitempty"`
}

type photoPayload struct {
	ChatID              string       `json:"chat_id"`
	Photo               string       `json:"photo"`
	Caption             string       `json:"caption,omitempty"`
	DisableNotification bool         `json:"disable_notification,omitempty"`
	ReplyToMessageID    int          `json:"reply_to_message_id,omitempty"`
	ReplyMarkup         *replyMarkup `json:"reply_markup,omitempty"`
}

type deletePayload struct {
	ChatID    string `json:"chat_id"`
	MessageID int    `json:"message_id"`
}

type commandsPayload struct {
	Commands []Command `json:"commands"`
}

type callbackAnswerPayload struct {
	CallbackQueryID string `json:"callback_query_id"`
	ShowAlert       bool   `json:"show_alert"`
	CacheTime       int    `json:"cache_time"`
	Text            string `json:"text,omitempty"`
	URL             string `json:"url,omitempty"`
}

// Update decoding. Pointer fields record key presence.

type updatesEnvelope struct {
	OK     bool              `json:"ok"`
	Result []json.RawMessage `json:"result"`
}

type rawUpdate struct {
	UpdateID      *int64       `json:"update_id"`
	Message       *rawMessage  `json:"message"`
	ChannelPost   *rawMessage  `json:"channel_post"`
	CallbackQuery *rawCallback `json:"callback_query"`
	EditedMessage *rawMessage  `json:"edited_message"`
}

type rawMessage struct {
	MessageID      int          `json:"message_id"`
	From           *rawUser     `json:"from"`
	Chat           rawChat      `json:"chat"`
	Date           int64        `json:"date"`
	Text           *string      `json:"text"`
	Caption        string       `json:"caption"`
	Location       *Location    `json:"location"`
	Document       *rawDocument `json:"document"`
	Contact        *rawContact  `json:"contact"`
	ReplyToMessage *rawMessage  `json:"reply_to_message"`
}

type rawCallback struct {
	ID      string      `json:"id"`
	From    *rawUser    `json:"from"`
	Data    string      `json:"data"`
	Message *rawMessage `json:"message"`
}

type rawUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

type rawChat struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type rawDocument struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
}

type rawContact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	UserID      int64  `json:"user_id"`
}
