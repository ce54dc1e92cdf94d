package bot

import (
	"context"
	"fmt"
	"log/slog"
)

func (b *Bot) adminCommands() []*Command {
	return []*Command{
		{
			Name:        "sync",
			Description: "Re-register slash commands with Discord",
			OwnerOnly:   true,
			Run:         b.runSync,
		},
		{
			Name:        "shutdown",
			Description: "Shut the bot down gracefully",
			OwnerOnly:   true,
			TextOnly:    true,
			Run:         b.runShutdown,
		},
	}
}

// runSync forces a fresh bulk overwrite of the global slash commands, for
// when the routing table changed without a process restart.
func (b *Bot) runSync(_ context.Context, inv *Invocation) error {
	if err := inv.DeferEphemeral(); err != nil {
		return err
	}

	appID := ""
	if b.session.State != nil && b.session.State.User != nil {
		appID = b.session.State.User.ID
	}
	if appID == "" {
		return ErrUpstream("Gateway session is not ready yet", nil)
	}

	cmds := b.registry.ApplicationCommands()
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, "", cmds)
	if err != nil {
		return ErrUpstream("Failed to sync slash commands", err)
	}

	b.mu.Lock()
	b.synced = true
	b.mu.Unlock()

	slog.Info("slash commands re-synced", slog.Int("count", len(registered)), slog.String("user_id", inv.UserID))
	return inv.FollowupEphemeral(fmt.Sprintf("Synced %d commands.", len(registered)))
}

// runShutdown acknowledges and then triggers the process stop callback. The
// reply goes out first so the invoker sees it before the gateway closes.
func (b *Bot) runShutdown(_ context.Context, inv *Invocation) error {
	if err := inv.Respond("Shutting down..."); err != nil {
		return err
	}
	if b.shutdown != nil {
		go b.shutdown()
	} else {
		slog.Warn("shutdown requested but no shutdown callback installed")
	}
	return nil
}
