package telegram

import (
	"context"
	"fmt"

	"filterbot/backend/internal/commands"
	"filterbot/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client implements commands.Transport on top of the Bot API.
type Client struct {
	BotAPI *tgbotapi.BotAPI
	Roster *Roster
}

var _ commands.Transport = (*Client)(nil)

func NewClient(bot *tgbotapi.BotAPI, roster *Roster) *Client {
	return &Client{BotAPI: bot, Roster: roster}
}

func applyOptions(base *tgbotapi.BaseChat, opts commands.SendOptions) {
	if opts.ReplyTo > 0 {
		base.ReplyToMessageID = opts.ReplyTo
		base.AllowSendingWithoutReply = true
	}
	if len(opts.Buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(opts.Buttons))
		for _, b := range opts.Buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
		}
		base.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}
}

func parseMode(opts commands.SendOptions) string {
	if opts.HTML {
		return tgbotapi.ModeHTML
	}
	return ""
}

// SendText sends a text message and returns its id.
func (c *Client) SendText(ctx context.Context, room models.RoomID, text string, opts commands.SendOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(int64(room), text)
	msg.ParseMode = parseMode(opts)
	applyOptions(&msg.BaseChat, opts)

	sent, err := c.BotAPI.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// mediaConfig builds the Bot API request for ref. Stickers carry no caption.
func mediaConfig(room models.RoomID, ref models.MediaRef, opts commands.SendOptions) (tgbotapi.Chattable, error) {
	chatID := int64(room)
	file := tgbotapi.FileID(ref.FileID)
	mode := parseMode(opts)

	switch ref.Kind {
	case models.MediaPhoto:
		cfg := tgbotapi.NewPhoto(chatID, file)
		cfg.Caption, cfg.ParseMode = ref.Caption, mode
		applyOptions(&cfg.BaseChat, opts)
		return cfg, nil
	case models.MediaVideo:
		cfg := tgbotapi.NewVideo(chatID, file)
		cfg.Caption, cfg.ParseMode = ref.Caption, mode
		applyOptions(&cfg.BaseChat, opts)
		return cfg, nil
	case models.MediaDocument:
		cfg := tgbotapi.NewDocument(chatID, file)
		cfg.Caption, cfg.ParseMode = ref.Caption, mode
		applyOptions(&cfg.BaseChat, opts)
		return cfg, nil
	case models.MediaAudio:
		cfg := tgbotapi.NewAudio(chatID, file)
		cfg.Caption, cfg.ParseMode = ref.Caption, mode
		applyOptions(&cfg.BaseChat, opts)
		return cfg, nil
	case models.MediaVoice:
		cfg := tgbotapi.NewVoice(chatID, file)
		cfg.Caption, cfg.ParseMode = ref.Caption, mode
		applyOptions(&cfg.BaseChat, opts)
		return cfg, nil
	case models.MediaSticker:
		cfg := tgbotapi.NewSticker(chatID, file)
		applyOptions(&cfg.BaseChat, opts)
		return cfg, nil
	default:
		return nil, fmt.Errorf("unsupported media type %q", ref.Kind)
	}
}

// SendMedia re-sends a stored file by its file id.
func (c *Client) SendMedia(ctx context.Context, room models.RoomID, ref models.MediaRef, opts commands.SendOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cfg, err := mediaConfig(room, ref, opts)
	if err != nil {
		return 0, err
	}
	sent, err := c.BotAPI.Send(cfg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// DeleteMessage deletes one message. Telegram refuses for messages older than 48h or
// when the bot lost its rights; callers log and move on.
func (c *Client) DeleteMessage(ctx context.Context, room models.RoomID, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.BotAPI.Request(tgbotapi.NewDeleteMessage(int64(room), messageID))
	return err
}

// ListAdministrators returns the chat's administrators.
func (c *Client) ListAdministrators(ctx context.Context, room models.RoomID) ([]models.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	admins, err := c.BotAPI.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: int64(room)},
	})
	if err != nil {
		return nil, err
	}
	members := make([]models.Member, 0, len(admins))
	for _, a := range admins {
		if a.User == nil {
			continue
		}
		members = append(members, memberOf(a.User))
	}
	return members, nil
}

// RecentSenders returns the senders this process has seen in room.
func (c *Client) RecentSenders(_ context.Context, room models.RoomID) ([]models.Member, error) {
	if c.Roster == nil {
		return nil, nil
	}
	return c.Roster.Recent(room), nil
}

func memberOf(u *tgbotapi.User) models.Member {
	return models.Member{
		ID:        u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		IsBot:     u.IsBot,
	}
}
