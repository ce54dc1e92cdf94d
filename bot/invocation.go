package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// sender is the subset of *discordgo.Session used to answer invocations.
type sender interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseEdit(i *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// responder abstracts the two reply protocols: interactions (respond xor
// defer-then-followup) and plain channel messages for text commands.
type responder interface {
	respond(content string, ephemeral bool) error
	respondEmbed(embed *discordgo.MessageEmbed) error
	respondComponents(content string, components []discordgo.MessageComponent, ephemeral bool) error
	deferResponse(ephemeral bool) error
	followup(content string, ephemeral bool) error
	followupEmbed(embed *discordgo.MessageEmbed) error
	editResponse(content string, clearComponents bool) error
	sendChannel(content string) error
	acknowledged() bool
}

// Invocation is the per-event command context handed to handlers. It is
// created per inbound event and discarded when the handler returns.
type Invocation struct {
	UserID      string
	Username    string
	ChannelID   string
	GuildID     string
	CommandName string

	// Args carries whitespace-split arguments for text commands.
	Args []string
	// Options carries named options for slash interactions.
	Options map[string]*discordgo.ApplicationCommandInteractionDataOption

	r responder
}

// Respond sends the immediate reply. For interactions this acknowledges the
// invocation; calling it after Defer is a protocol error.
func (inv *Invocation) Respond(content string) error { return inv.r.respond(content, false) }

// RespondEphemeral sends an immediate reply visible only to the invoker.
func (inv *Invocation) RespondEphemeral(content string) error { return inv.r.respond(content, true) }

// RespondEmbed sends an immediate embed reply.
func (inv *Invocation) RespondEmbed(embed *discordgo.MessageEmbed) error {
	return inv.r.respondEmbed(embed)
}

// RespondComponents sends an immediate reply carrying interactive components.
func (inv *Invocation) RespondComponents(content string, components []discordgo.MessageComponent, ephemeral bool) error {
	return inv.r.respondComponents(content, components, ephemeral)
}

// Defer acknowledges the invocation so the reply can be sent later with
// Followup. Required when processing may exceed the platform's immediate
// response window.
func (inv *Invocation) Defer() error { return inv.r.deferResponse(false) }

// DeferEphemeral defers with an invoker-only placeholder.
func (inv *Invocation) DeferEphemeral() error { return inv.r.deferResponse(true) }

// Followup sends the deferred reply.
func (inv *Invocation) Followup(content string) error { return inv.r.followup(content, false) }

// FollowupEphemeral sends a deferred reply visible only to the invoker.
func (inv *Invocation) FollowupEphemeral(content string) error { return inv.r.followup(content, true) }

// FollowupEmbed sends a deferred embed reply.
func (inv *Invocation) FollowupEmbed(embed *discordgo.MessageEmbed) error {
	return inv.r.followupEmbed(embed)
}

// EditResponse rewrites the original reply, dropping any components.
func (inv *Invocation) EditResponse(content string) error { return inv.r.editResponse(content, true) }

// SendChannel posts a plain message to the originating channel, outside the
// interaction reply chain (used for overflow chunks).
func (inv *Invocation) SendChannel(content string) error { return inv.r.sendChannel(content) }

// Acknowledged reports whether the invocation has been responded to or
// deferred yet.
func (inv *Invocation) Acknowledged() bool { return inv.r.acknowledged() }

// ReplyError delivers a user-visible failure message on whichever leg of the
// protocol is still legal for this invocation.
func (inv *Invocation) ReplyError(content string) error {
	if inv.Acknowledged() {
		return inv.FollowupEphemeral(content)
	}
	return inv.RespondEphemeral(content)
}

// StringOption returns a slash option value, or "" when absent.
func (inv *Invocation) StringOption(name string) string {
	if opt, ok := inv.Options[name]; ok {
		return opt.StringValue()
	}
	return ""
}

// BoolOption returns a slash option value, or false when absent.
func (inv *Invocation) BoolOption(name string) bool {
	if opt, ok := inv.Options[name]; ok {
		return opt.BoolValue()
	}
	return false
}

// interactionResponder answers slash and component interactions. It tracks
// acknowledgement so exactly one of respond / defer-then-followup is sent.
type interactionResponder struct {
	s         sender
	i         *discordgo.Interaction
	channelID string
	acked     bool
}

func (r *interactionResponder) respond(content string, ephemeral bool) error {
	if r.acked {
		return fmt.Errorf("interaction already acknowledged")
	}
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: flags},
	})
	if err == nil {
		r.acked = true
	}
	return err
}

func (r *interactionResponder) respondEmbed(embed *discordgo.MessageEmbed) error {
	if r.acked {
		return fmt.Errorf("interaction already acknowledged")
	}
	err := r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
	if err == nil {
		r.acked = true
	}
	return err
}

func (r *interactionResponder) respondComponents(content string, components []discordgo.MessageComponent, ephemeral bool) error {
	if r.acked {
		return fmt.Errorf("interaction already acknowledged")
	}
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Components: components, Flags: flags},
	})
	if err == nil {
		r.acked = true
	}
	return err
}

func (r *interactionResponder) deferResponse(ephemeral bool) error {
	if r.acked {
		return fmt.Errorf("interaction already acknowledged")
	}
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
	if err == nil {
		r.acked = true
	}
	return err
}

func (r *interactionResponder) followup(content string, ephemeral bool) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_, err := r.s.FollowupMessageCreate(r.i, true, &discordgo.WebhookParams{Content: content, Flags: flags})
	return err
}

func (r *interactionResponder) followupEmbed(embed *discordgo.MessageEmbed) error {
	_, err := r.s.FollowupMessageCreate(r.i, true, &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}})
	return err
}

func (r *interactionResponder) editResponse(content string, clearComponents bool) error {
	edit := &discordgo.WebhookEdit{Content: &content}
	if clearComponents {
		empty := []discordgo.MessageComponent{}
		edit.Components = &empty
	}
	_, err := r.s.InteractionResponseEdit(r.i, edit)
	return err
}

func (r *interactionResponder) sendChannel(content string) error {
	_, err := r.s.ChannelMessageSend(r.channelID, content)
	return err
}

func (r *interactionResponder) acknowledged() bool { return r.acked }

// messageResponder answers prefix text commands with plain channel messages.
// Ephemeral delivery does not exist on this surface and degrades to a normal
// message; defer degrades to a typing indicator.
type messageResponder struct {
	s         sender
	channelID string
	acked     bool
}

func (r *messageResponder) respond(content string, _ bool) error {
	_, err := r.s.ChannelMessageSend(r.channelID, content)
	if err == nil {
		r.acked = true
	}
	return err
}

func (r *messageResponder) respondEmbed(embed *discordgo.MessageEmbed) error {
	_, err := r.s.ChannelMessageSendEmbed(r.channelID, embed)
	if err == nil {
		r.acked = true
	}
	return err
}

func (r *messageResponder) respondComponents(string, []discordgo.MessageComponent, bool) error {
	return fmt.Errorf("components are not supported on the text command surface")
}

func (r *messageResponder) deferResponse(bool) error {
	return r.s.ChannelTyping(r.channelID)
}

func (r *messageResponder) followup(content string, _ bool) error {
	_, err := r.s.ChannelMessageSend(r.channelID, content)
	return err
}

func (r *messageResponder) followupEmbed(embed *discordgo.MessageEmbed) error {
	_, err := r.s.ChannelMessageSendEmbed(r.channelID, embed)
	return err
}

func (r *messageResponder) editResponse(content string, _ bool) error {
	// Text commands have no editable original response; post instead.
	_, err := r.s.ChannelMessageSend(r.channelID, content)
	return err
}

func (r *messageResponder) sendChannel(content string) error {
	_, err := r.s.ChannelMessageSend(r.channelID, content)
	return err
}

func (r *messageResponder) acknowledged() bool { return r.acked }
