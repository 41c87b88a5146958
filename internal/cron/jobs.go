package cron

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/wirebot/internal/config"
	"github.com/flemzord/wirebot/pkg/bot"
)

// Session gives a job exclusive access to the bot. *runner.Runner
// implements it, so scheduled sends wait for the poll in progress.
type Session interface {
	Do(fn func(b *bot.Bot) error) error
}

// SendMessageJob sends a fixed text to a chat on a schedule.
type SendMessageJob struct {
	JobName string
	Cron    string
	ChatID  string
	Text    string
	Session Session
	Logger  *slog.Logger
}

// Compile-time interface check.
var _ Job = (*SendMessageJob)(nil)

// Name implements Job.
func (j *SendMessageJob) Name() string { return "send_message:" + j.JobName }

// Schedule implements Job.
func (j *SendMessageJob) Schedule() string { return j.Cron }

// Run sends the message through the session.
func (j *SendMessageJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cron: %s cancelled: %w", j.JobName, err)
	}
	err := j.Session.Do(func(b *bot.Bot) error {
		return b.SendMessage(ctx, bot.SendMessageRequest{ChatID: j.ChatID, Text: j.Text})
	})
	if err != nil {
		return fmt.Errorf("cron: %s: %w", j.JobName, err)
	}
	if j.Logger != nil {
		j.Logger.Info("scheduled message sent", "job", j.JobName, "chat_id", j.ChatID)
	}
	return nil
}

// JobsFromConfig builds one SendMessageJob per configured schedule.
func JobsFromConfig(schedules []config.ScheduleConfig, session Session, logger *slog.Logger) []Job {
	jobs := make([]Job, 0, len(schedules))
	for _, sc := range schedules {
		jobs = append(jobs, &SendMessageJob{
			JobName: sc.Name,
			Cron:    sc.Cron,
			ChatID:  sc.ChatID,
			Text:    sc.Text,
			Session: session,
			Logger:  logger,
		})
	}
	return jobs
}
