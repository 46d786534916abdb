// Package commands turns chat events into filter, self-destruct and greeting operations
// and renders the results back through the transport.
package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"filterbot/backend/internal/broadcast"
	"filterbot/backend/internal/config"
	"filterbot/backend/internal/ephemeral"
	"filterbot/backend/internal/greeting"
	"filterbot/backend/internal/localization"
	"filterbot/backend/internal/matcher"
	"filterbot/backend/internal/models"
	"filterbot/backend/internal/storage"

	"github.com/rs/zerolog"
)

// LinkButton is a URL button attached under a message.
type LinkButton struct {
	Text string
	URL  string
}

// SendOptions controls how the transport renders an outgoing message.
type SendOptions struct {
	ReplyTo int
	HTML    bool
	// Buttons are rendered as a single row under the message.
	Buttons []LinkButton
}

// Transport is what the facade needs from the chat platform. Every call may fail.
type Transport interface {
	SendText(ctx context.Context, room models.RoomID, text string, opts SendOptions) (int, error)
	SendMedia(ctx context.Context, room models.RoomID, ref models.MediaRef, opts SendOptions) (int, error)
	DeleteMessage(ctx context.Context, room models.RoomID, messageID int) error
	ListAdministrators(ctx context.Context, room models.RoomID) ([]models.Member, error)
	RecentSenders(ctx context.Context, room models.RoomID) ([]models.Member, error)
}

// Message is an incoming chat message, already stripped of transport specifics.
type Message struct {
	Room      models.RoomID
	MessageID int
	Group     bool
	From      models.Member
	Lang      string
	Text      string
	// Command is the command name without the slash, empty for plain messages.
	Command string
	Args    string
	// ReplyMedia is the media of the message this one replies to, if any.
	ReplyMedia *models.MediaRef
}

// Facade wires the filter store, matcher, self-destruct tracker and greeting gate to a transport.
type Facade struct {
	Transport   Transport
	Filters     storage.FilterStorage
	Settings    storage.SettingsStorage
	Matcher     *matcher.Engine
	Tracker     *ephemeral.Tracker
	Gate        *broadcast.Gate
	Localizer   *localization.Localizer
	BotUsername string
	// CommunityURL, when set, adds a second /start button linking to the bot's community group.
	CommunityURL string

	Now  func() time.Time
	Pick func() string

	log zerolog.Logger
}

// NewFacade builds a Facade. Now and Pick default to time.Now and greeting.Pick.
func NewFacade(
	t Transport,
	filters storage.FilterStorage,
	settings storage.SettingsStorage,
	tracker *ephemeral.Tracker,
	gate *broadcast.Gate,
	loc *localization.Localizer,
	log zerolog.Logger,
) *Facade {
	return &Facade{
		Transport: t,
		Filters:   filters,
		Settings:  settings,
		Matcher:   matcher.NewEngine(filters),
		Tracker:   tracker,
		Gate:      gate,
		Localizer: loc,
		Now:       time.Now,
		Pick:      greeting.Pick,
		log:       log.With().Str("component", "commands").Logger(),
	}
}

// HandleMessage dispatches one incoming message. It never returns transport errors;
// they are logged and degraded here.
func (f *Facade) HandleMessage(ctx context.Context, msg Message) {
	switch msg.Command {
	case "":
		f.OnIncomingMessage(ctx, msg)
	case "start":
		f.OnStart(ctx, msg)
	case "filter":
		f.OnAddFilterCommand(ctx, msg)
	case "filters":
		f.OnListFiltersCommand(ctx, msg)
	case "stop":
		f.OnRemoveFilterCommand(ctx, msg)
	case "stopall":
		f.OnRemoveAllCommand(ctx, msg)
	case "goodmorning":
		f.OnGreetingCommand(ctx, msg)
	case "settings":
		f.OnSettingsCommand(ctx, msg)
	case "selfdestruct":
		f.OnSelfDestructCommand(ctx, msg)
	default:
		f.log.Debug().Str("command", msg.Command).Int64("room", int64(msg.Room)).Msg("Ignoring unknown command")
	}
}

func (f *Facade) text(msg Message, key string, args ...any) string {
	if len(args) == 0 {
		return f.Localizer.GetString(msg.Lang, key)
	}
	return f.Localizer.Format(msg.Lang, key, args...)
}

// reply answers msg with plain text and logs a failure.
func (f *Facade) reply(ctx context.Context, msg Message, text string) {
	if _, err := f.Transport.SendText(ctx, msg.Room, text, SendOptions{ReplyTo: msg.MessageID}); err != nil {
		f.log.Warn().Err(err).Int64("room", int64(msg.Room)).Msg("Failed to send reply")
	}
}

// OnStart sends the welcome text with "add to group" and community buttons.
func (f *Facade) OnStart(ctx context.Context, msg Message) {
	opts := SendOptions{ReplyTo: msg.MessageID}
	if f.BotUsername != "" {
		opts.Buttons = append(opts.Buttons, LinkButton{
			Text: f.text(msg, "btn_add_to_group"),
			URL:  fmt.Sprintf("https://t.me/%s?startgroup=true", f.BotUsername),
		})
	}
	if f.CommunityURL != "" {
		opts.Buttons = append(opts.Buttons, LinkButton{Text: f.text(msg, "btn_community"), URL: f.CommunityURL})
	}
	if _, err := f.Transport.SendText(ctx, msg.Room, f.text(msg, "welcome"), opts); err != nil {
		f.log.Warn().Err(err).Int64("room", int64(msg.Room)).Msg("Failed to send welcome")
	}
}

// OnAddFilterCommand handles /filter. Replying to a media message stores that media, captioned
// with the reply text.
func (f *Facade) OnAddFilterCommand(ctx context.Context, msg Message) {
	trigger, replyText, err := ParseFilterArgs(msg.Args)
	switch {
	case errors.Is(err, ErrUnmatchedQuote):
		f.reply(ctx, msg, f.text(msg, "filter_bad_quote"))
		return
	case errors.Is(err, ErrEmptyTrigger):
		f.reply(ctx, msg, f.text(msg, "filter_empty_trigger"))
		return
	case err != nil:
		f.reply(ctx, msg, f.text(msg, "filter_usage"))
		return
	}

	var kind models.MediaKind
	var fileID string
	if msg.ReplyMedia != nil {
		kind, fileID = msg.ReplyMedia.Kind, msg.ReplyMedia.FileID
	}

	if err := f.Filters.AddFilter(msg.Room, trigger, replyText, kind, fileID); err != nil {
		f.log.Error().Err(err).Int64("room", int64(msg.Room)).Msg("Failed to add filter")
		f.reply(ctx, msg, f.text(msg, "filter_save_failed"))
		return
	}
	f.reply(ctx, msg, f.text(msg, "filter_saved", trigger))
}

// OnListFiltersCommand handles /filters. Triggers are listed alphabetically.
func (f *Facade) OnListFiltersCommand(ctx context.Context, msg Message) {
	filters := f.Filters.ListFilters(msg.Room)
	if len(filters) == 0 {
		f.reply(ctx, msg, f.text(msg, "filters_none"))
		return
	}
	sort.Slice(filters, func(i, j int) bool { return filters[i].Trigger < filters[j].Trigger })

	var b strings.Builder
	b.WriteString(f.text(msg, "filters_header"))
	for _, e := range filters {
		if e.IsMedia() {
			b.WriteString(f.text(msg, "filters_media_line", e.Trigger, strings.ToUpper(string(e.Media.Kind)), e.Media.Caption))
		} else {
			b.WriteString(f.text(msg, "filters_text_line", e.Trigger, e.Content))
		}
	}
	f.reply(ctx, msg, b.String())
}

// OnRemoveFilterCommand handles /stop.
func (f *Facade) OnRemoveFilterCommand(ctx context.Context, msg Message) {
	trigger, err := ParseStopArgs(msg.Args)
	if err != nil {
		f.reply(ctx, msg, f.text(msg, "stop_usage"))
		return
	}

	removed, err := f.Filters.RemoveFilter(msg.Room, trigger)
	if err != nil {
		f.log.Error().Err(err).Int64("room", int64(msg.Room)).Msg("Failed to remove filter")
		f.reply(ctx, msg, f.text(msg, "storage_failed"))
		return
	}
	if removed {
		f.reply(ctx, msg, f.text(msg, "stop_removed", trigger))
	} else {
		f.reply(ctx, msg, f.text(msg, "stop_not_found", trigger))
	}
}

// OnRemoveAllCommand handles /stopall.
func (f *Facade) OnRemoveAllCommand(ctx context.Context, msg Message) {
	removed, err := f.Filters.RemoveAllFilters(msg.Room)
	if err != nil {
		f.log.Error().Err(err).Int64("room", int64(msg.Room)).Msg("Failed to remove filters")
		f.reply(ctx, msg, f.text(msg, "storage_failed"))
		return
	}
	if removed {
		f.reply(ctx, msg, f.text(msg, "stopall_done"))
	} else {
		f.reply(ctx, msg, f.text(msg, "stopall_none"))
	}
}

// OnSettingsCommand shows the room's self-destruct setting.
func (f *Facade) OnSettingsCommand(ctx context.Context, msg Message) {
	secs := f.selfDestructSeconds(msg.Room)
	mark, status := "⭕", f.text(msg, "settings_disabled")
	if secs > 0 {
		mark, status = "✅", fmt.Sprintf("%ds", secs)
	}
	f.reply(ctx, msg, f.text(msg, "settings_view", mark, status))
}

// OnSelfDestructCommand handles /selfdestruct <seconds>. Negative values clamp to 0 (disabled);
// values above config.MaxSelfDestructSeconds are rejected with the usage text.
func (f *Facade) OnSelfDestructCommand(ctx context.Context, msg Message) {
	secs, err := strconv.Atoi(strings.TrimSpace(msg.Args))
	if err != nil || secs > config.MaxSelfDestructSeconds {
		f.reply(ctx, msg, f.text(msg, "selfdestruct_usage"))
		return
	}
	if secs < 0 {
		secs = 0
	}
	if err := f.Settings.SetSelfDestructSeconds(msg.Room, secs); err != nil {
		f.log.Error().Err(err).Int64("room", int64(msg.Room)).Msg("Failed to save self-destruct setting")
		f.reply(ctx, msg, f.text(msg, "storage_failed"))
		return
	}
	if secs == 0 {
		f.reply(ctx, msg, f.text(msg, "selfdestruct_off"))
		return
	}
	f.reply(ctx, msg, f.text(msg, "selfdestruct_set", secs))
}

func (f *Facade) selfDestructSeconds(room models.RoomID) int {
	if f.Settings == nil {
		return 0
	}
	secs, err := f.Settings.SelfDestructSeconds(room)
	if err != nil {
		f.log.Warn().Err(err).Int64("room", int64(room)).Msg("Failed to read self-destruct setting")
		return 0
	}
	return secs
}

// OnIncomingMessage handles a plain (non-command) message: the passive greeting for groups,
// then at most one filter reply.
func (f *Facade) OnIncomingMessage(ctx context.Context, msg Message) {
	if msg.Group {
		f.maybeGreet(ctx, msg.Room)
	}
	if msg.Text == "" {
		return
	}

	entry, ok := f.Matcher.Resolve(msg.Room, msg.Text)
	if !ok {
		return
	}

	opts := SendOptions{ReplyTo: msg.MessageID}
	var sentID int
	var err error
	if entry.IsMedia() {
		sentID, err = f.Transport.SendMedia(ctx, msg.Room, *entry.Media, opts)
	} else {
		sentID, err = f.Transport.SendText(ctx, msg.Room, entry.Content, opts)
	}
	if err != nil {
		f.log.Warn().Err(err).
			Int64("room", int64(msg.Room)).
			Str("trigger", entry.Trigger).
			Msg("Failed to send filter reply")
		return
	}

	if secs := f.selfDestructSeconds(msg.Room); secs > 0 && f.Tracker != nil {
		f.Tracker.Schedule(msg.Room, sentID, secs)
	}
}

// roster collects administrators then recent senders. Either source failing just yields fewer names.
func (f *Facade) roster(ctx context.Context, room models.RoomID) []models.Member {
	var members []models.Member
	admins, err := f.Transport.ListAdministrators(ctx, room)
	if err != nil {
		f.log.Warn().Err(err).Int64("room", int64(room)).Msg("Could not get chat administrators")
	}
	members = append(members, admins...)

	recent, err := f.Transport.RecentSenders(ctx, room)
	if err != nil {
		f.log.Warn().Err(err).Int64("room", int64(room)).Msg("Could not get recent senders")
	}
	return append(members, recent...)
}

// sendGreeting sends the greeting with mentions, falling back once to a plain greeting.
func (f *Facade) sendGreeting(ctx context.Context, room models.RoomID, greetee string, exclude int64, replyTo int) error {
	verse := f.Pick()
	mentions := greeting.Mentions(f.roster(ctx, room), exclude, config.MaxMentions)

	full := greeting.Compose(html.EscapeString(greetee), mentions, verse)
	_, err := f.Transport.SendText(ctx, room, full, SendOptions{ReplyTo: replyTo, HTML: true})
	if err == nil {
		f.log.Info().Int64("room", int64(room)).Int("mentions", len(mentions)).Msg("Sent good morning message")
		return nil
	}
	f.log.Warn().Err(err).Int64("room", int64(room)).Msg("Greeting with mentions failed, retrying plain")

	plain := greeting.Compose(greetee, nil, verse)
	if _, err := f.Transport.SendText(ctx, room, plain, SendOptions{ReplyTo: replyTo}); err != nil {
		return err
	}
	f.log.Info().Int64("room", int64(room)).Msg("Sent good morning message without mentions")
	return nil
}

func (f *Facade) maybeGreet(ctx context.Context, room models.RoomID) {
	if f.Gate == nil {
		return
	}
	now := f.Now()
	if !f.Gate.ShouldFire(ctx, room, now) {
		return
	}
	if err := f.sendGreeting(ctx, room, "", 0, 0); err != nil {
		f.log.Error().Err(err).Int64("room", int64(room)).Msg("Could not send good morning message")
		return
	}
	f.Gate.RecordFired(ctx, room, now)
}

// OnGreetingCommand handles /goodmorning: group chats only, greets the caller by name and
// mentions everyone else it can find.
func (f *Facade) OnGreetingCommand(ctx context.Context, msg Message) {
	if !msg.Group {
		f.reply(ctx, msg, f.text(msg, "goodmorning_groups_only"))
		return
	}
	if err := f.sendGreeting(ctx, msg.Room, msg.From.FirstName, msg.From.ID, msg.MessageID); err != nil {
		f.log.Error().Err(err).Int64("room", int64(msg.Room)).Msg("Could not send good morning message")
		f.reply(ctx, msg, f.text(msg, "goodmorning_failed"))
	}
}
