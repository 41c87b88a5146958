package bot

import "strconv"

// UpdateType tags the kind of update a Message was decoded from.
type UpdateType string

// Update types, in dispatch order.
const (
	TypeMessage       UpdateType = "message"
	TypeChannelPost   UpdateType = "channel_post"
	TypeCallbackQuery UpdateType = "callback_query"
	TypeEditedMessage UpdateType = "edited_message"
)

// Message is one decoded update. Only the fields relevant to Type are set;
// everything else keeps its zero value. An update of a kind not listed above
// is still delivered, with an empty Type and only UpdateID set.
type Message struct {
	UpdateID  int64      `json:"update_id"`
	Type      UpdateType `json:"type"`
	MessageID int        `json:"message_id,omitempty"`
	ChatID    int64      `json:"chat_id,omitempty"`
	ChatTitle string     `json:"chat_title,omitempty"`
	FromID    int64      `json:"from_id,omitempty"`
	FromName  string     `json:"from_name,omitempty"`
	Date      int64      `json:"date,omitempty"`
	Text      string     `json:"text,omitempty"`

	Location *Location `json:"location,omitempty"`
	Document *Document `json:"document,omitempty"`
	Contact  *Contact  `json:"contact,omitempty"`
	ReplyTo  *ReplyTo  `json:"reply_to,omitempty"`

	// QueryID is set for callback queries and is needed to answer them.
	QueryID string `json:"query_id,omitempty"`
}

// Chat returns the chat id in the string form the send helpers accept.
func (m Message) Chat() string {
	return strconv.FormatInt(m.ChatID, 10)
}

// Location is a point on the map.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Document is a file attached to a message. Resolved reports whether the
// download path and size were fetched successfully.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Resolved bool   `json:"resolved"`
	// FilePath is the download URL. It embeds the bot token.
	FilePath string `json:"-"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Contact is a shared phone contact.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
}

// ReplyTo identifies the message a message replies to. For callback queries
// it holds the text of the message carrying the keyboard.
type ReplyTo struct {
	MessageID int    `json:"message_id,omitempty"`
	Text      string `json:"text,omitempty"`
}
