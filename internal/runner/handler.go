package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/flemzord/wirebot/pkg/bot"
)

// Handler reacts to one accepted record. It runs with the runner lock held
// and may call any bot method.
type Handler interface {
	Handle(ctx context.Context, b *bot.Bot, msg bot.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, b *bot.Bot, msg bot.Message) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, b *bot.Bot, msg bot.Message) error {
	return f(ctx, b, msg)
}

// Commands is the command menu the default handler answers.
var Commands = []bot.Command{
	{Command: "start", Description: "Show what this bot does"},
	{Command: "id", Description: "Show your user and chat ids"},
}

// DefaultHandler greets on /start, reports ids on /id, acknowledges
// callback queries and documents and, when Echo is set, echoes text back.
type DefaultHandler struct {
	Echo bool
	// ChunkLength is the longest text sent in one message.
	ChunkLength int
}

// Handle implements Handler.
func (h DefaultHandler) Handle(ctx context.Context, b *bot.Bot, msg bot.Message) error {
	switch msg.Type {
	case bot.TypeCallbackQuery:
		return h.callback(ctx, b, msg)
	case bot.TypeMessage:
	default:
		return nil
	}

	switch {
	case msg.Document != nil:
		return h.reply(ctx, b, msg, describeDocument(msg.Document))
	case msg.Location != nil && h.Echo:
		return h.reply(ctx, b, msg, fmt.Sprintf("Location: %.6f, %.6f", msg.Location.Latitude, msg.Location.Longitude))
	}

	command, _, _ := strings.Cut(msg.Text, " ")
	// "/start@my_bot" in groups.
	command, _, _ = strings.Cut(command, "@")
	switch command {
	case "/start":
		return h.reply(ctx, b, msg, greeting(b, msg))
	case "/id":
		return h.reply(ctx, b, msg, fmt.Sprintf("user id: %d\nchat id: %d", msg.FromID, msg.ChatID))
	}

	if h.Echo && msg.Text != "" {
		return h.reply(ctx, b, msg, msg.Text)
	}
	return nil
}

func (h DefaultHandler) callback(ctx context.Context, b *bot.Bot, msg bot.Message) error {
	if err := b.AnswerCallbackQuery(ctx, bot.AnswerCallbackRequest{QueryID: msg.QueryID}); err != nil {
		return err
	}
	if !h.Echo || msg.ChatID == 0 {
		return nil
	}
	return h.reply(ctx, b, msg, "Pressed: "+msg.Text)
}

func (h DefaultHandler) reply(ctx context.Context, b *bot.Bot, msg bot.Message, text string) error {
	for _, chunk := range SplitText(text, h.ChunkLength) {
		if err := b.SendMessage(ctx, bot.SendMessageRequest{ChatID: msg.Chat(), Text: chunk}); err != nil {
			return err
		}
	}
	return nil
}

func greeting(b *bot.Bot, msg bot.Message) string {
	var sb strings.Builder
	name := msg.FromName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&sb, "Hi %s!", name)
	if me, ok := b.Identity(); ok && me.Username != "" {
		fmt.Fprintf(&sb, " I am @%s.", me.Username)
	}
	sb.WriteString("\n\nCommands:")
	for _, c := range Commands {
		fmt.Fprintf(&sb, "\n/%s - %s", c.Command, c.Description)
	}
	return sb.String()
}

// describeDocument never includes the download path: it embeds the token.
func describeDocument(d *bot.Document) string {
	name := d.FileName
	if name == "" {
		name = d.FileID
	}
	if !d.Resolved {
		return fmt.Sprintf("Received %s (metadata unavailable)", name)
	}
	return fmt.Sprintf("Received %s (%d bytes)", name, d.FileSize)
}
