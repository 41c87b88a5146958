package runner

import (
	"strconv"
	"strings"

	"github.com/flemzord/wirebot/pkg/bot"
)

// AllowList restricts which senders and chats the runner handles. Unlike a
// multi-user assistant, a device bot with no list configured answers
// everyone: an empty AllowList allows all.
type AllowList struct {
	users map[string]struct{}
	chats map[string]struct{}
}

// NewAllowList creates an AllowList of numeric user and chat ids.
func NewAllowList(users, chats []string) *AllowList {
	a := &AllowList{
		users: make(map[string]struct{}, len(users)),
		chats: make(map[string]struct{}, len(chats)),
	}
	for _, u := range users {
		a.users[normalize(u)] = struct{}{}
	}
	for _, c := range chats {
		a.chats[normalize(c)] = struct{}{}
	}
	return a
}

// Empty reports whether no entry is configured.
func (a *AllowList) Empty() bool {
	return a == nil || (len(a.users) == 0 && len(a.chats) == 0)
}

// IsAllowed reports whether msg may be handled.
func (a *AllowList) IsAllowed(msg bot.Message) bool {
	if a.Empty() {
		return true
	}
	if msg.FromID != 0 {
		if _, ok := a.users[strconv.FormatInt(msg.FromID, 10)]; ok {
			return true
		}
	}
	if msg.ChatID != 0 {
		if _, ok := a.chats[strconv.FormatInt(msg.ChatID, 10)]; ok {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}
