// Package telegram handles the integration with the Telegram Bot API.
// It receives updates, converts them to commands.Message values for the facade,
// and implements the facade's outbound Transport.
package telegram

import (
	"context"
	"strings"

	"filterbot/backend/internal/commands"
	"filterbot/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// MessageHandler consumes converted messages. Implemented by *commands.Facade.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg commands.Message)
}

// BotService is responsible for receiving Telegram updates and routing them to the facade.
type BotService struct {
	BotAPI  *tgbotapi.BotAPI
	Handler MessageHandler
	Roster  *Roster

	log zerolog.Logger
}

// NewBotAPI authorizes token against the Bot API.
func NewBotAPI(token string, log zerolog.Logger) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Info().Str("username", bot.Self.UserName).Msg("✅ Authorized on account")
	return bot, nil
}

// NewBotService creates a new BotService instance.
func NewBotService(bot *tgbotapi.BotAPI, handler MessageHandler, roster *Roster, log zerolog.Logger) *BotService {
	return &BotService{
		BotAPI:  bot,
		Handler: handler,
		Roster:  roster,
		log:     log.With().Str("component", "telegram").Logger(),
	}
}

// mediaOf extracts the media reference of msg, picking the largest photo size.
func mediaOf(msg *tgbotapi.Message) *models.MediaRef {
	if msg == nil {
		return nil
	}
	switch {
	case len(msg.Photo) > 0:
		return &models.MediaRef{Kind: models.MediaPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID}
	case msg.Video != nil:
		return &models.MediaRef{Kind: models.MediaVideo, FileID: msg.Video.FileID}
	case msg.Document != nil:
		return &models.MediaRef{Kind: models.MediaDocument, FileID: msg.Document.FileID}
	case msg.Audio != nil:
		return &models.MediaRef{Kind: models.MediaAudio, FileID: msg.Audio.FileID}
	case msg.Voice != nil:
		return &models.MediaRef{Kind: models.MediaVoice, FileID: msg.Voice.FileID}
	case msg.Sticker != nil:
		return &models.MediaRef{Kind: models.MediaSticker, FileID: msg.Sticker.FileID}
	}
	return nil
}

// toMessage converts a Bot API message. ok is false for messages the bot should ignore:
// no chat, or a command addressed to a different bot.
func toMessage(msg *tgbotapi.Message, botUsername string) (commands.Message, bool) {
	if msg == nil || msg.Chat == nil {
		return commands.Message{}, false
	}

	out := commands.Message{
		Room:       models.RoomID(msg.Chat.ID),
		MessageID:  msg.MessageID,
		Group:      msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
		Text:       msg.Text,
		ReplyMedia: mediaOf(msg.ReplyToMessage),
	}
	if msg.From != nil {
		out.From = memberOf(msg.From)
		out.Lang = msg.From.LanguageCode
	}

	if msg.IsCommand() {
		if _, target, addressed := strings.Cut(msg.CommandWithAt(), "@"); addressed && !strings.EqualFold(target, botUsername) {
			return commands.Message{}, false
		}
		out.Command = strings.ToLower(msg.Command())
		out.Args = msg.CommandArguments()
		out.Text = ""
	}
	return out, true
}

func (s *BotService) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	converted, ok := toMessage(msg, s.BotAPI.Self.UserName)
	if !ok {
		return
	}
	if converted.Group && s.Roster != nil {
		s.Roster.Observe(converted.Room, converted.From)
	}
	s.Handler.HandleMessage(ctx, converted)
}

// Run is the main loop for receiving Telegram updates. It returns when ctx is cancelled.
func (s *BotService) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	s.log.Info().Msg("Listening for updates")

	for {
		select {
		case <-ctx.Done():
			s.BotAPI.StopReceivingUpdates()
			s.log.Info().Msg("Stopped receiving updates")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				s.handleMessage(ctx, update.Message)
			}
		}
	}
}
