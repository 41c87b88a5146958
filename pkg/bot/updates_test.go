package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestGetUpdatesTextMessage(t *testing.T) {
	f := newFixture(t, nil, ok(`{"ok":true,"result":[{"update_id":100,"message":{
		"message_id":7,"from":{"id":55,"first_name":"Ada"},
		"chat":{"id":-1001,"title":"Lab"},"date":1700000000,"text":"hello"}}]}`))

	n := f.bot.GetUpdates(context.Background(), 0)
	if n != 1 {
		t.Fatalf("GetUpdates() = %d, want 1", n)
	}

	m := f.bot.Messages()[0]
	if m.Type != TypeMessage {
		t.Errorf("Type = %q, want %q", m.Type, TypeMessage)
	}
	if m.Text != "hello" {
		t.Errorf("Text = %q, want %q", m.Text, "hello")
	}
	if m.UpdateID != 100 || m.MessageID != 7 {
		t.Errorf("UpdateID, MessageID = %d, %d", m.UpdateID, m.MessageID)
	}
	if m.ChatID != -1001 || m.ChatTitle != "Lab" {
		t.Errorf("chat = %d %q", m.ChatID, m.ChatTitle)
	}
	if m.FromID != 55 || m.FromName != "Ada" {
		t.Errorf("from = %d %q", m.FromID, m.FromName)
	}
	if m.Date != 1700000000 {
		t.Errorf("Date = %d", m.Date)
	}
	if m.Location != nil || m.Document != nil || m.Contact != nil || m.ReplyTo != nil {
		t.Errorf("optional fields set on a text message: %+v", m)
	}
	if f.bot.LastUpdateID() != 100 {
		t.Errorf("LastUpdateID() = %d, want 100", f.bot.LastUpdateID())
	}
	if !f.conn.Connected() {
		t.Error("connection closed after delivering updates, want kept open")
	}
}

func TestGetUpdatesRequest(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.MaxMessages = 3
		c.LongPoll = 30 * time.Second
	}, ok(`{"ok":true,"result":[]}`))

	f.bot.GetUpdates(context.Background(), 42)

	line, _, _ := strings.Cut(f.conn.Requests()[0], "\r\n")
	if !strings.HasPrefix(line, "GET /bot"+testToken+"/getUpdates?") {
		t.Fatalf("request line = %q", line)
	}
	for _, want := range []string{"offset=42", "limit=3", "timeout=30"} {
		if !strings.Contains(line, want) {
			t.Errorf("request line %q missing %q", line, want)
		}
	}
	if f.bot.Engine().ReadTimeout() != 30*time.Second+1500*time.Millisecond {
		t.Errorf("ReadTimeout() = %v", f.bot.Engine().ReadTimeout())
	}
}

func TestGetUpdatesWithoutLongPollOmitsTimeout(t *testing.T) {
	f := newFixture(t, nil, ok(`{"ok":true,"result":[]}`))
	f.bot.GetUpdates(context.Background(), 1)

	if strings.Contains(f.conn.Requests()[0], "timeout=") {
		t.Errorf("request carries a timeout: %q", f.conn.Requests()[0])
	}
}

func TestGetUpdatesIdempotent(t *testing.T) {
	body := `{"ok":true,"result":[{"update_id":5,"message":{"message_id":1,"chat":{"id":1},"text":"a"}}]}`
	f := newFixture(t, nil, ok(body), ok(body))

	if n := f.bot.GetUpdates(context.Background(), 0); n != 1 {
		t.Fatalf("first GetUpdates() = %d, want 1", n)
	}
	if n := f.bot.GetUpdates(context.Background(), 0); n != 0 {
		t.Errorf("second GetUpdates() = %d, want 0", n)
	}
	if f.bot.LastUpdateID() != 5 {
		t.Errorf("LastUpdateID() = %d, want 5", f.bot.LastUpdateID())
	}
}

func TestWatermarkTracksMaximum(t *testing.T) {
	batches := [][]int64{{3, 4}, {9}, {10, 11, 12}}
	var responses []string
	distinct := 0
	for _, ids := range batches {
		var parts []string
		for _, id := range ids {
			parts = append(parts, fmt.Sprintf(`{"update_id":%d,"message":{"chat":{"id":1},"text":"x"}}`, id))
			distinct++
		}
		responses = append(responses, ok(`{"ok":true,"result":[`+strings.Join(parts, ",")+`]}`))
	}
	f := newFixture(t, func(c *Config) { c.MaxMessages = 3 }, responses...)

	total := 0
	for range batches {
		total += f.bot.GetUpdates(context.Background(), f.bot.LastUpdateID()+1)
	}
	if total != distinct {
		t.Errorf("delivered %d records, want %d", total, distinct)
	}
	if f.bot.LastUpdateID() != 12 {
		t.Errorf("LastUpdateID() = %d, want 12", f.bot.LastUpdateID())
	}
}

func TestDuplicateInBatchDoesNotStopLoop(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxMessages = 3 }, ok(`{"ok":true,"result":[
		{"update_id":5,"message":{"chat":{"id":1},"text":"a"}},
		{"update_id":5,"message":{"chat":{"id":1},"text":"a"}},
		{"update_id":6,"message":{"chat":{"id":1},"text":"b"}}]}`))

	if n := f.bot.GetUpdates(context.Background(), 0); n != 2 {
		t.Fatalf("GetUpdates() = %d, want 2", n)
	}
	if got := f.bot.Messages()[1].Text; got != "b" {
		t.Errorf("second record text = %q, want %q", got, "b")
	}
}

// Dedup is strictly greater than the watermark. An inequality check against
// the last id would deliver both records here; this one drops update 8.
func TestOutOfOrderBatchDropsLowerIDs(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxMessages = 3 }, ok(`{"ok":true,"result":[
		{"update_id":10,"message":{"chat":{"id":1},"text":"late"}},
		{"update_id":8,"message":{"chat":{"id":1},"text":"early"}}]}`))

	if n := f.bot.GetUpdates(context.Background(), 0); n != 1 {
		t.Fatalf("GetUpdates() = %d, want 1", n)
	}
	if f.bot.Messages()[0].UpdateID != 10 {
		t.Errorf("delivered update %d, want 10", f.bot.Messages()[0].UpdateID)
	}
}

func TestMaxMessagesCapsRecords(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxMessages = 2 }, ok(`{"ok":true,"result":[
		{"update_id":1,"message":{"chat":{"id":1},"text":"a"}},
		{"update_id":2,"message":{"chat":{"id":1},"text":"b"}},
		{"update_id":3,"message":{"chat":{"id":1},"text":"c"}}]}`))

	if n := f.bot.GetUpdates(context.Background(), 0); n != 2 {
		t.Fatalf("GetUpdates() = %d, want 2", n)
	}
	if f.bot.LastUpdateID() != 2 {
		t.Errorf("LastUpdateID() = %d, want 2", f.bot.LastUpdateID())
	}
}

func TestEmptyBodyYieldsZero(t *testing.T) {
	f := newFixture(t, nil)
	f.conn.RefuseConnects = 1

	if n := f.bot.GetUpdates(context.Background(), 0); n != 0 {
		t.Errorf("GetUpdates() = %d, want 0", n)
	}
	if len(f.obs.failures) != 1 || !errors.Is(f.obs.failures[0], ErrConnect) {
		t.Errorf("failures = %v, want [ErrConnect]", f.obs.failures)
	}
}

func TestShortBodyIsTransient(t *testing.T) {
	f := newFixture(t, nil, "HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\n{")

	if n := f.bot.GetUpdates(context.Background(), 0); n != 0 {
		t.Errorf("GetUpdates() = %d, want 0", n)
	}
	if len(f.obs.failures) != 1 || !errors.Is(f.obs.failures[0], ErrPartialBody) {
		t.Errorf("failures = %v, want [ErrPartialBody]", f.obs.failures)
	}
	if f.conn.Connected() {
		t.Error("connection left open after a failed poll")
	}
}

func TestUnparseableBodyReportsParseFailure(t *testing.T) {
	f := newFixture(t, nil, ok(`<html>bad gateway</html>`))

	if n := f.bot.GetUpdates(context.Background(), 0); n != 0 {
		t.Errorf("GetUpdates() = %d, want 0", n)
	}
	if len(f.obs.failures) != 1 || !errors.Is(f.obs.failures[0], ErrParse) {
		t.Errorf("failures = %v, want [ErrParse]", f.obs.failures)
	}
}

func TestNoResultClosesConnection(t *testing.T) {
	f := newFixture(t, nil, ok(`{"ok":true,"result":[]}`))

	if n := f.bot.GetUpdates(context.Background(), 0); n != 0 {
		t.Errorf("GetUpdates() = %d, want 0", n)
	}
	if f.conn.Connected() {
		t.Error("connection left open after an empty poll")
	}
	if len(f.obs.failures) != 0 {
		t.Errorf("failures = %v, want none", f.obs.failures)
	}
}

func TestOversizedUpdateIsSkipped(t *testing.T) {
	big := `{"ok":true,"result":[{"update_id":77,"message":{"chat":{"id":1},"text":"` +
		strings.Repeat("x", 500) + `"}}]}`
	next := `{"ok":true,"result":[{"update_id":78,"message":{"chat":{"id":1},"text":"small"}}]}`
	f := newFixture(t, func(c *Config) { c.MaxBodyBytes = 96 }, ok(big), ok(next))

	n := f.bot.GetUpdates(context.Background(), 0)
	if n != 1 {
		t.Fatalf("GetUpdates() = %d, want 1", n)
	}
	if got := f.bot.Messages()[0]; got.UpdateID != 78 || got.Text != "small" {
		t.Errorf("record = %+v", got)
	}

	reqs := f.conn.Requests()
	if len(reqs) != 2 {
		t.Fatalf("sent %d requests, want 2", len(reqs))
	}
	if !strings.Contains(reqs[1], "offset=78") {
		t.Errorf("retry request %q does not skip past update 77", strings.SplitN(reqs[1], "\r\n", 2)[0])
	}
	if len(f.obs.failures) != 1 || !errors.Is(f.obs.failures[0], ErrOversized) {
		t.Errorf("failures = %v, want [ErrOversized]", f.obs.failures)
	}
}

func TestOversizedWithoutRecoverableIDUsesWatermark(t *testing.T) {
	big := `{"ok":true,"result":[` + strings.Repeat(" ", 200) + `]}`
	f := newFixture(t, func(c *Config) { c.MaxBodyBytes = 64 }, ok(big), ok(`{"ok":true,"result":[]}`))
	f.bot.advance(20)

	f.bot.GetUpdates(context.Background(), 21)

	if f.bot.LastUpdateID() != 21 {
		t.Errorf("LastUpdateID() = %d, want 21", f.bot.LastUpdateID())
	}
	if reqs := f.conn.Requests(); len(reqs) != 2 || !strings.Contains(reqs[1], "offset=22") {
		t.Errorf("requests = %d, want a retry with offset=22", len(reqs))
	}
}

func TestOversizedRecursionIsBounded(t *testing.T) {
	big := ok(`{"ok":true,"result":[` + strings.Repeat(" ", 200) + `]}`)
	responses := make([]string, maxSkipDepth+5)
	for i := range responses {
		responses[i] = big
	}
	f := newFixture(t, func(c *Config) { c.MaxBodyBytes = 64 }, responses...)

	if n := f.bot.GetUpdates(context.Background(), 0); n != 0 {
		t.Errorf("GetUpdates() = %d, want 0", n)
	}
	if got := len(f.conn.Requests()); got != maxSkipDepth+1 {
		t.Errorf("sent %d requests, want %d", got, maxSkipDepth+1)
	}
}

func TestCallbackQueryUsesNestedMessage(t *testing.T) {
	f := newFixture(t, nil, ok(`{"ok":true,"result":[{"update_id":9,"callback_query":{
		"id":"cbq-1","from":{"id":55,"first_name":"Ada"},"data":"btn:yes",
		"chat":{"id":999},
		"message":{"message_id":31,"chat":{"id":4242},"text":"Pick one"}}}]}`))

	if n := f.bot.GetUpdates(context.Background(), 0); n != 1 {
		t.Fatalf("GetUpdates() = %d, want 1", n)
	}
	m := f.bot.Messages()[0]
	if m.Type != TypeCallbackQuery {
		t.Errorf("Type = %q", m.Type)
	}
	if m.Text != "btn:yes" {
		t.Errorf("Text = %q, want data field", m.Text)
	}
	if m.ChatID != 4242 {
		t.Errorf("ChatID = %d, want 4242 from the nested message", m.ChatID)
	}
	if m.QueryID != "cbq-1" || m.MessageID != 31 {
		t.Errorf("QueryID, MessageID = %q, %d", m.QueryID, m.MessageID)
	}
	if m.ReplyTo == nil || m.ReplyTo.Text != "Pick one" {
		t.Errorf("ReplyTo = %+v", m.ReplyTo)
	}
	if m.FromID != 55 || m.FromName != "Ada" {
		t.Errorf("from = %d %q", m.FromID, m.FromName)
	}
}

func TestDispatchTable(t *testing.T) {
	tests := []struct {
		name  string
		elem  string
		check func(t *testing.T, m Message)
	}{
		{
			name: "channel post",
			elem: `{"update_id":1,"channel_post":{"message_id":3,"chat":{"id":-100,"title":"News"},"date":5,"text":"post"}}`,
			check: func(t *testing.T, m Message) {
				if m.Type != TypeChannelPost || m.Text != "post" || m.ChatTitle != "News" || m.Date != 5 {
					t.Errorf("record = %+v", m)
				}
			},
		},
		{
			name: "location",
			elem: `{"update_id":1,"message":{"chat":{"id":1},"location":{"latitude":48.85,"longitude":2.35}}}`,
			check: func(t *testing.T, m Message) {
				if m.Location == nil || m.Location.Latitude != 48.85 || m.Location.Longitude != 2.35 {
					t.Errorf("Location = %+v", m.Location)
				}
				if m.Text != "" {
					t.Errorf("Text = %q, want empty", m.Text)
				}
			},
		},
		{
			name: "contact",
			elem: `{"update_id":1,"message":{"chat":{"id":1},"contact":{"phone_number":"+331","first_name":"Bob","user_id":77}}}`,
			check: func(t *testing.T, m Message) {
				if m.Contact == nil || *m.Contact != (Contact{PhoneNumber: "+331", FirstName: "Bob", UserID: 77}) {
					t.Errorf("Contact = %+v", m.Contact)
				}
			},
		},
		{
			name: "text wins over location",
			elem: `{"update_id":1,"message":{"chat":{"id":1},"text":"t","location":{"latitude":1,"longitude":2}}}`,
			check: func(t *testing.T, m Message) {
				if m.Text != "t" || m.Location != nil {
					t.Errorf("record = %+v", m)
				}
			},
		},
		{
			name: "reply",
			elem: `{"update_id":1,"message":{"chat":{"id":1},"text":"yes","reply_to_message":{"message_id":12,"text":"question?"}}}`,
			check: func(t *testing.T, m Message) {
				if m.ReplyTo == nil || m.ReplyTo.MessageID != 12 || m.ReplyTo.Text != "question?" {
					t.Errorf("ReplyTo = %+v", m.ReplyTo)
				}
			},
		},
		{
			name: "edited message ignores contact",
			elem: `{"update_id":1,"edited_message":{"message_id":4,"chat":{"id":1},"contact":{"phone_number":"+1"}}}`,
			check: func(t *testing.T, m Message) {
				if m.Type != TypeEditedMessage || m.Contact != nil || m.MessageID != 4 {
					t.Errorf("record = %+v", m)
				}
			},
		},
		{
			name: "message wins over edited_message",
			elem: `{"update_id":1,"message":{"chat":{"id":1},"text":"m"},"edited_message":{"chat":{"id":1},"text":"e"}}`,
			check: func(t *testing.T, m Message) {
				if m.Type != TypeMessage || m.Text != "m" {
					t.Errorf("record = %+v", m)
				}
			},
		},
		{
			name: "unhandled kind",
			elem: `{"update_id":1,"my_chat_member":{"chat":{"id":1}}}`,
			check: func(t *testing.T, m Message) {
				if m.Type != "" || m.UpdateID != 1 {
					t.Errorf("record = %+v", m)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, ok(`{"ok":true,"result":[`+tt.elem+`]}`))
			if n := f.bot.GetUpdates(context.Background(), 0); n != 1 {
				t.Fatalf("GetUpdates() = %d, want 1", n)
			}
			tt.check(t, f.bot.Messages()[0])
		})
	}
}

func TestMissingUpdateIDIsSkipped(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxMessages = 2 }, ok(`{"ok":true,"result":[
		{"message":{"chat":{"id":1},"text":"orphan"}},
		{"update_id":3,"message":{"chat":{"id":1},"text":"ok"}}]}`))

	if n := f.bot.GetUpdates(context.Background(), 0); n != 1 {
		t.Fatalf("GetUpdates() = %d, want 1", n)
	}
	if len(f.obs.failures) != 1 || !errors.Is(f.obs.failures[0], ErrMissingField) {
		t.Errorf("failures = %v, want [ErrMissingField]", f.obs.failures)
	}
}

func TestDocumentIsResolvedEagerly(t *testing.T) {
	f := newFixture(t, nil,
		ok(`{"ok":true,"result":[{"update_id":1,"message":{"chat":{"id":1},"caption":"report",
			"document":{"file_id":"F1","file_name":"r.pdf"}}}]}`),
		ok(`{"ok":true,"result":{"file_id":"F1","file_path":"documents/file_3.pdf","file_size":2048}}`),
	)

	if n := f.bot.GetUpdates(context.Background(), 0); n != 1 {
		t.Fatalf("GetUpdates() = %d, want 1", n)
	}
	doc := f.bot.Messages()[0].Document
	if doc == nil {
		t.Fatal("Document = nil")
	}
	if !doc.Resolved {
		t.Error("Resolved = false, want true")
	}
	want := "https://api.telegram.org/file/bot" + testToken + "/documents/file_3.pdf"
	if doc.FilePath != want {
		t.Errorf("FilePath = %q, want %q", doc.FilePath, want)
	}
	if doc.FileSize != 2048 || doc.FileName != "r.pdf" || doc.Caption != "report" {
		t.Errorf("Document = %+v", doc)
	}

	reqs := f.conn.Requests()
	if len(reqs) != 2 || !strings.Contains(reqs[1], "/getFile?file_id=F1") {
		t.Errorf("requests = %q", reqs)
	}
}

func TestDocumentUnresolved(t *testing.T) {
	f := newFixture(t, nil,
		ok(`{"ok":true,"result":[{"update_id":1,"message":{"chat":{"id":1},"document":{"file_id":"F1"}}}]}`),
		ok(`{"ok":false,"error_code":400,"description":"Bad Request: file is too big"}`),
	)

	f.bot.GetUpdates(context.Background(), 0)
	doc := f.bot.Messages()[0].Document
	if doc == nil || doc.Resolved || doc.FilePath != "" {
		t.Errorf("Document = %+v, want unresolved", doc)
	}
}

func TestUpdatesSequenceIsLazyAndSingleUse(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxMessages = 3 }, ok(`{"ok":true,"result":[
		{"update_id":1,"message":{"chat":{"id":1},"text":"a"}},
		{"update_id":2,"message":{"chat":{"id":1},"text":"b"}},
		{"update_id":3,"message":{"chat":{"id":1},"text":"c"}}]}`))

	seq := f.bot.Updates(context.Background(), 0)
	if len(f.conn.Requests()) != 0 {
		t.Fatal("Updates() sent a request before iteration")
	}

	for m := range seq {
		if m.UpdateID == 2 {
			break
		}
	}
	if f.bot.LastUpdateID() != 2 {
		t.Errorf("LastUpdateID() = %d, want 2 after stopping at the second record", f.bot.LastUpdateID())
	}

	count := 0
	for range seq {
		count++
	}
	if count != 0 {
		t.Errorf("second range yielded %d records, want 0", count)
	}
	if len(f.conn.Requests()) != 1 {
		t.Errorf("sent %d requests, want 1", len(f.conn.Requests()))
	}
	if len(f.obs.polls) != 1 || f.obs.polls[0] != 2 {
		t.Errorf("polls = %v, want [2]", f.obs.polls)
	}
}
