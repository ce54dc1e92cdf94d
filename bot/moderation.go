package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/infibot/telemetry"
)

// purgeBatchSize is the Discord bulk-delete API's maximum per call.
const purgeBatchSize = 100

// bulkDeleteMaxAge is the Discord cutoff for bulk deletion; older messages
// have to be deleted one at a time.
const bulkDeleteMaxAge = 14 * 24 * time.Hour

// messagePurger is the subset of *discordgo.Session the purge loop needs,
// kept narrow so tests can run it against a fake channel.
type messagePurger interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

func (b *Bot) moderationCommands() []*Command {
	perms := int64(discordgo.PermissionManageMessages)
	return []*Command{
		{
			Name:               "purge",
			Description:        "Delete all messages in this channel (requires confirmation)",
			DefaultPermissions: &perms,
			Run:                b.runPurge,
		},
	}
}

func (b *Bot) runPurge(ctx context.Context, inv *Invocation) error {
	if inv.GuildID == "" {
		return ErrValidation("This command can only be used in a server channel.")
	}

	conf := NewConfirmation(inv.UserID)
	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Confirm",
					Style:    discordgo.DangerButton,
					CustomID: confirmCustomID(conf.Nonce, "yes"),
				},
				discordgo.Button{
					Label:    "Cancel",
					Style:    discordgo.SecondaryButton,
					CustomID: confirmCustomID(conf.Nonce, "no"),
				},
			},
		},
	}

	// Register before publishing the prompt so a click arriving immediately
	// after the message renders still finds the confirmation.
	b.confirms.add(conf)
	defer b.confirms.remove(conf.Nonce)

	prompt := "⚠️ This will delete **all** messages in this channel. Are you sure?"
	if err := inv.RespondComponents(prompt, components, true); err != nil {
		return err
	}

	switch conf.Await(ctx, confirmTimeout) {
	case OutcomeTimedOut:
		return inv.EditResponse("Purge cancelled (timed out).")
	case OutcomeDeclined:
		return inv.EditResponse("Purge cancelled.")
	}

	if err := inv.EditResponse("Purging messages..."); err != nil {
		return err
	}

	deleted, err := purgeChannel(b.session, inv.ChannelID)
	if telemetry.MessagesPurged != nil {
		telemetry.MessagesPurged.Add(float64(deleted))
	}
	if err != nil {
		slog.Error("purge failed", slog.String("channel_id", inv.ChannelID), slog.Int("deleted", deleted), slog.Any("error", err))
		// The count so far is still useful to the invoker; report it
		// alongside the failure instead of surfacing a generic error.
		return inv.FollowupEphemeral(fmt.Sprintf("Error during purge after %d messages: %v", deleted, err))
	}

	slog.Info("channel purged", slog.String("channel_id", inv.ChannelID), slog.String("user_id", inv.UserID), slog.Int("deleted", deleted))
	return inv.SendChannel(fmt.Sprintf("Channel purged by <@%s>. Deleted %d messages.", inv.UserID, deleted))
}

// purgeChannel deletes messages from the channel in batches until a fetch
// returns fewer than a full batch or an upstream call fails. It returns the
// number of messages deleted either way.
func purgeChannel(p messagePurger, channelID string) (int, error) {
	total := 0
	cutoff := time.Now().Add(-bulkDeleteMaxAge)
	for {
		msgs, err := p.ChannelMessages(channelID, purgeBatchSize, "", "", "")
		if err != nil {
			return total, err
		}
		if len(msgs) == 0 {
			return total, nil
		}

		var bulk []string
		var single []string
		for _, m := range msgs {
			if m.Timestamp.After(cutoff) {
				bulk = append(bulk, m.ID)
			} else {
				single = append(single, m.ID)
			}
		}

		if len(bulk) > 1 {
			if err := p.ChannelMessagesBulkDelete(channelID, bulk); err != nil {
				return total, err
			}
			total += len(bulk)
		} else if len(bulk) == 1 {
			// Bulk delete rejects single-message payloads.
			if err := p.ChannelMessageDelete(channelID, bulk[0]); err != nil {
				return total, err
			}
			total++
		}
		for _, id := range single {
			if err := p.ChannelMessageDelete(channelID, id); err != nil {
				return total, err
			}
			total++
		}

		if len(msgs) < purgeBatchSize {
			return total, nil
		}
	}
}
