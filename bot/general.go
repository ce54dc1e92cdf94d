package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/infibot/db"
)

// maxPrefixLength bounds guild prefix overrides to something typable.
const maxPrefixLength = 5

func (b *Bot) generalCommands() []*Command {
	manageServer := int64(discordgo.PermissionManageServer)
	return []*Command{
		{
			Name:        "ping",
			Description: "Check bot latency",
			Run:         b.runPing,
		},
		{
			Name:        "info",
			Description: "Show bot information",
			Run:         b.runInfo,
		},
		{
			Name:        "help",
			Description: "List available commands",
			Run:         b.runHelp,
		},
		{
			Name:        "prefix",
			Description: "Show or set this server's command prefix",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "value",
					Description: "New prefix (omit to show the current one)",
					Required:    false,
				},
			},
			DefaultPermissions: &manageServer,
			Run:                b.runPrefix,
		},
	}
}

func (b *Bot) runHelp(_ context.Context, inv *Invocation) error {
	var sb strings.Builder
	for _, cmd := range b.registry.All() {
		if cmd.TextOnly {
			fmt.Fprintf(&sb, "`%s%s` — %s\n", b.cfg.DiscordPrefix, cmd.Name, cmd.Description)
			continue
		}
		fmt.Fprintf(&sb, "`/%s` — %s\n", cmd.Name, cmd.Description)
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Commands",
		Description: sb.String(),
		Color:       0x3498DB,
	}
	return inv.RespondEmbed(embed)
}

func (b *Bot) runPing(_ context.Context, inv *Invocation) error {
	latency := b.session.HeartbeatLatency().Round(time.Millisecond)
	return inv.Respond(fmt.Sprintf("Pong! Latency: %dms", latency.Milliseconds()))
}

func (b *Bot) runInfo(_ context.Context, inv *Invocation) error {
	uptime := b.Uptime()
	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	embed := &discordgo.MessageEmbed{
		Title: "Bot Information",
		Color: 0x3498DB,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Latency", Value: fmt.Sprintf("%dms", b.session.HeartbeatLatency().Milliseconds()), Inline: true},
			{Name: "Uptime", Value: fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds), Inline: true},
			{Name: "Guilds", Value: fmt.Sprintf("%d", b.GuildCount()), Inline: true},
			{Name: "discordgo", Value: discordgo.VERSION, Inline: true},
		},
	}
	if b.session.State != nil && b.session.State.User != nil {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: b.session.State.User.AvatarURL("")}
	}
	return inv.RespondEmbed(embed)
}

// runPrefix shows or updates the per-guild prefix override consumed by the
// prefix resolver. "default" clears the override.
func (b *Bot) runPrefix(ctx context.Context, inv *Invocation) error {
	if inv.GuildID == "" {
		return ErrValidation("This command can only be used in a server.")
	}

	value := inv.StringOption("value")
	if value == "" {
		gs, err := db.GetGuildSettings(ctx, b.db, inv.GuildID)
		if err != nil {
			return fmt.Errorf("load guild settings: %w", err)
		}
		current := b.cfg.DiscordPrefix
		if gs != nil && gs.Prefix != "" {
			current = gs.Prefix
		}
		return inv.Respond(fmt.Sprintf("Current prefix: `%s`", current))
	}

	if value == "default" {
		if err := db.SetGuildPrefix(ctx, b.db, inv.GuildID, ""); err != nil {
			return fmt.Errorf("clear guild prefix: %w", err)
		}
		return inv.Respond(fmt.Sprintf("Prefix reset to the default `%s`.", b.cfg.DiscordPrefix))
	}

	if len([]rune(value)) > maxPrefixLength {
		return ErrValidation(fmt.Sprintf("Prefix must be at most %d characters.", maxPrefixLength))
	}
	if err := db.SetGuildPrefix(ctx, b.db, inv.GuildID, value); err != nil {
		return fmt.Errorf("set guild prefix: %w", err)
	}
	return inv.Respond(fmt.Sprintf("Prefix set to `%s`.", value))
}
