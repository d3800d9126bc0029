// Package transport receives daily reports from the QC group chat.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/pipeline"
	"github.com/okklab/reportboard/internal/report"
)

// reportMarker is the cheap pre-filter for group chatter. Anything without
// it is ignored without queueing.
const reportMarker = "Report QA"

// TelegramBot long-polls the bot API and queues report-looking messages for
// the pipeline.
type TelegramBot struct {
	bot      *tgbotapi.BotAPI
	queue    *pipeline.Queue
	pipe     *pipeline.Pipeline
	hostPage string
	logger   zerolog.Logger
}

// NewTelegramBot creates a new TelegramBot. hostPage is the local path of
// the slideshow host file sent back after a successful ingestion.
func NewTelegramBot(token string, queue *pipeline.Queue, pipe *pipeline.Pipeline, hostPage string, logger zerolog.Logger) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logger.Info().Str("username", bot.Self.UserName).Msg("telegram bot authorized")
	return &TelegramBot{
		bot:      bot,
		queue:    queue,
		pipe:     pipe,
		hostPage: hostPage,
		logger:   logger,
	}, nil
}

// Run consumes updates until the context is cancelled.
func (t *TelegramBot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info().Msg("telegram transport started")
	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.logger.Info().Msg("telegram transport stopped")
			return

		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			t.handleMessage(update.Message)
		}
	}
}

func (t *TelegramBot) handleMessage(msg *tgbotapi.Message) {
	text := msg.Text
	if !strings.Contains(text, reportMarker) {
		return
	}

	chatID := msg.Chat.ID
	err := t.queue.Enqueue(pipeline.Job{
		Kind: "report",
		Run: func(ctx context.Context) error {
			err := t.pipe.IngestReport(ctx, text)
			t.replyWithOutcome(chatID, err)
			return err
		},
	})
	if err != nil {
		t.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to queue telegram report")
		t.reply(chatID, "Processing queue is busy, please resend the report in a minute.")
		return
	}
	t.logger.Info().Int64("chat_id", chatID).Int("bytes", len(text)).Msg("telegram report queued")
}

func (t *TelegramBot) replyWithOutcome(chatID int64, err error) {
	switch {
	case err == nil:
		t.reply(chatID, "Report accepted, dashboards updated.")
		t.sendHostPage(chatID)
	case errors.Is(err, report.ErrMalformedReport):
		t.reply(chatID, "Could not read the report: "+err.Error())
	default:
		t.reply(chatID, "Report processing failed, check the service logs.")
	}
}

// sendHostPage attaches the freshly rebuilt slideshow page so the sender can
// eyeball the result without a screen.
func (t *TelegramBot) sendHostPage(chatID int64) {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(t.hostPage))
	if _, err := t.bot.Send(doc); err != nil {
		t.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send host page")
	}
}

func (t *TelegramBot) reply(chatID int64, text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send telegram reply")
	}
}
