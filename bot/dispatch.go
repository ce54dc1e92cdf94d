package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/infibot/db"
	"github.com/onnwee/infibot/telemetry"
)

// dispatchTimeout bounds a single command invocation end to end.
const dispatchTimeout = 2 * time.Minute

// resolvePrefixes returns the ordered set of accepted prefixes for a message:
// the guild override when one is stored, the configured default, and the bot
// mention forms, which are always accepted regardless of configuration.
func (b *Bot) resolvePrefixes(ctx context.Context, guildID, botID string) []string {
	prefixes := make([]string, 0, 6)

	if guildID != "" && b.db != nil {
		gs, err := db.GetGuildSettings(ctx, b.db, guildID)
		if err != nil {
			slog.Warn("guild prefix lookup failed", slog.Any("err", err), slog.String("guild_id", guildID))
		} else if gs != nil && gs.Prefix != "" {
			prefixes = append(prefixes, gs.Prefix)
		}
	}

	prefixes = append(prefixes, b.cfg.DiscordPrefix)
	prefixes = append(prefixes,
		"<@"+botID+"> ", "<@"+botID+">",
		"<@!"+botID+"> ", "<@!"+botID+">")
	return prefixes
}

// onMessageCreate is the text command surface: resolve a prefix, split the
// command word from its arguments, and dispatch through the shared registry.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())

	botID := ""
	if s.State.User != nil {
		botID = s.State.User.ID
	}

	rest := ""
	matched := false
	for _, p := range b.resolvePrefixes(ctx, m.GuildID, botID) {
		if strings.HasPrefix(m.Content, p) {
			rest = strings.TrimSpace(strings.TrimPrefix(m.Content, p))
			matched = true
			break
		}
	}
	if !matched || rest == "" {
		return
	}

	fields := strings.Fields(rest)
	name := strings.ToLower(fields[0])
	cmd, ok := b.registry.Lookup(name)
	if !ok {
		// Unknown commands are silently ignored on the text surface.
		return
	}

	inv := &Invocation{
		UserID:      m.Author.ID,
		Username:    m.Author.Username,
		ChannelID:   m.ChannelID,
		GuildID:     m.GuildID,
		CommandName: name,
		Args:        fields[1:],
		r:           &messageResponder{s: s, channelID: m.ChannelID},
	}

	b.execute(ctx, cmd, inv, "text")
}

// onInteractionCreate is the structured surface: slash commands route by
// declared name, component interactions route to pending confirmations.
func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleApplicationCommand(ctx, s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	}
}

func (b *Bot) handleApplicationCommand(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	cmd, ok := b.registry.Lookup(data.Name)
	if !ok || cmd.TextOnly {
		// A stale registration can outlive a routing table change; without a
		// response the platform reports the application as unresponsive.
		slog.Warn("unknown slash command", slog.String("command", data.Name))
		r := &interactionResponder{s: s, i: i.Interaction, channelID: i.ChannelID}
		if err := r.respond("This command is no longer available.", true); err != nil {
			slog.Warn("failed to reply to unknown command", slog.Any("error", err))
		}
		return
	}

	user := interactionUser(i.Interaction)
	if user == nil {
		return
	}

	options := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
	for _, opt := range data.Options {
		options[opt.Name] = opt
	}

	inv := &Invocation{
		UserID:      user.ID,
		Username:    user.Username,
		ChannelID:   i.ChannelID,
		GuildID:     i.GuildID,
		CommandName: data.Name,
		Options:     options,
		r:           &interactionResponder{s: s, i: i.Interaction, channelID: i.ChannelID},
	}

	if b.execute(ctx, cmd, inv, "interaction") {
		// Post-execution hook: best-effort history logging, never allowed to
		// affect the already-delivered response.
		b.logCommandHistory(ctx, inv)
	}
}

// execute runs one command invocation wrapped by the recovery policy: the
// owner gate runs before any side effect, every failure is classified to a
// user-visible message, and a panic in a handler can never take down the
// process or another invocation. Returns true on success.
func (b *Bot) execute(ctx context.Context, cmd *Command, inv *Invocation, surface string) (ok bool) {
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("command", inv.CommandName),
		slog.String("surface", surface),
		slog.String("user_id", inv.UserID))

	ctx, span := telemetry.StartSpan(ctx, "bot", "command."+inv.CommandName,
		attribute.String("surface", surface))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in command handler", slog.Any("panic", r))
			if telemetry.CommandErrors != nil {
				telemetry.CommandErrors.WithLabelValues(ErrorClassUnknown.String()).Inc()
			}
			_ = inv.ReplyError("An unexpected error occurred. Please try again later.")
			ok = false
		}
	}()

	if cmd.OwnerOnly && !b.cfg.IsOwner(inv.UserID) {
		err := ErrPermissionDenied("This command is owner-only.")
		b.reportError(logger, span, inv, err)
		return false
	}

	var err error
	telemetry.TimeFunc(telemetry.CommandDuration, func() {
		err = cmd.Run(ctx, inv)
	})
	if err != nil {
		b.reportError(logger, span, inv, err)
		return false
	}

	telemetry.SetSpanSuccess(span)
	if telemetry.CommandsExecuted != nil {
		telemetry.CommandsExecuted.WithLabelValues(inv.CommandName).Inc()
	}
	return true
}

// reportError converts a handler failure into its user-visible message and
// the appropriate log record. Unclassified errors log full detail server-side
// while the user sees only a generic message.
func (b *Bot) reportError(logger *slog.Logger, span trace.Span, inv *Invocation, err error) {
	telemetry.RecordError(span, err)
	class := Classify(err)
	switch class {
	case ErrorClassConfigMissing, ErrorClassPermission, ErrorClassValidation:
		logger.Info("command rejected", slog.String("class", class.String()), slog.String("reason", err.Error()))
	case ErrorClassStorage:
		logger.Warn("command failed", slog.String("class", class.String()), slog.Any("err", err))
	default:
		logger.Error("command failed", slog.String("class", class.String()), slog.Any("err", err))
	}
	if telemetry.CommandErrors != nil {
		telemetry.CommandErrors.WithLabelValues(class.String()).Inc()
	}
	if replyErr := inv.ReplyError(UserMessage(err)); replyErr != nil {
		logger.Warn("failed to deliver error message", slog.Any("err", replyErr))
	}
}

// logCommandHistory appends a CommandHistoryRecord after a successful slash
// invocation. Storage failures are swallowed with a warning: the user-visible
// response was already sent and must not be affected.
func (b *Bot) logCommandHistory(ctx context.Context, inv *Invocation) {
	if b.db == nil {
		return
	}
	args := serializeOptions(inv.Options)
	if err := db.LogCommand(ctx, b.db, inv.GuildID, inv.ChannelID, inv.UserID, inv.CommandName, args, true); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("command history logging failed",
			slog.Any("err", err), slog.String("command", inv.CommandName))
	}
}

func serializeOptions(options map[string]*discordgo.ApplicationCommandInteractionDataOption) string {
	if len(options) == 0 {
		return ""
	}
	flat := make(map[string]interface{}, len(options))
	for name, opt := range options {
		flat[name] = opt.Value
	}
	out, err := json.Marshal(flat)
	if err != nil {
		return fmt.Sprintf("%v", flat)
	}
	return string(out)
}

// handleComponent routes button presses on confirmation prompts. A press by
// anyone other than the authorizing user gets an ephemeral notice and leaves
// the state machine untouched.
func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	nonce, choice, ok := parseConfirmID(data.CustomID)
	if !ok {
		return
	}

	user := interactionUser(i.Interaction)
	if user == nil {
		return
	}

	notice := func(content string) {
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
		})
		if err != nil {
			slog.Warn("failed to send component notice", slog.Any("err", err))
		}
	}

	conf, ok := b.confirms.lookup(nonce)
	if !ok {
		notice("This confirmation is no longer active.")
		return
	}
	if user.ID != conf.UserID {
		notice("Only the command author can respond to this confirmation.")
		return
	}

	outcome := OutcomeDeclined
	if choice == "yes" {
		outcome = OutcomeConfirmed
	}
	conf.Resolve(outcome)

	// Acknowledge the press without altering the prompt; the awaiting
	// invocation edits it once the outcome is handled.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		slog.Warn("failed to acknowledge component press", slog.Any("err", err))
	}
}

func confirmCustomID(nonce, choice string) string {
	return "confirm:" + nonce + ":" + choice
}

func parseConfirmID(customID string) (nonce, choice string, ok bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != "confirm" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// interactionUser returns the invoking user for guild or DM interactions.
func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
