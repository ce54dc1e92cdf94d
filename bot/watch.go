package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/infibot/telemetry"
	"github.com/onnwee/infibot/w2gapi"
)

// w2gEmbedColor matches the Watch2Gether brand gold.
const w2gEmbedColor = 0xFDBD00

func (b *Bot) watchCommands() []*Command {
	return []*Command{
		{
			Name:        "watch",
			Description: "Create a Watch2Gether room to watch videos together",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "url",
					Description: "Optional video URL to preload in the room (YouTube, etc.)",
					Required:    false,
				},
			},
			Run: b.runWatch,
		},
	}
}

func (b *Bot) runWatch(ctx context.Context, inv *Invocation) error {
	if b.w2g == nil {
		return ErrConfigMissing("Watch2Gether service is not available.")
	}

	if err := inv.Defer(); err != nil {
		return err
	}

	var room w2gapi.Room
	var err error
	telemetry.TimeFunc(upstreamObserver("w2g"), func() {
		room, err = b.w2g.CreateRoom(ctx, inv.StringOption("url"))
	})
	if err != nil {
		return ErrUpstream("Failed to create Watch2Gether room", err)
	}

	slog.Info("created w2g room", slog.String("streamkey", room.StreamKey), slog.String("user_id", inv.UserID))

	embed := &discordgo.MessageEmbed{
		Title:       "Watch2Gether",
		Description: fmt.Sprintf("**%s** created a room!\n\n[Join Room](%s)", inv.Username, room.URL),
		Color:       w2gEmbedColor,
	}
	return inv.FollowupEmbed(embed)
}
