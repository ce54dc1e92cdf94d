package bot

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/infibot/chunk"
	"github.com/onnwee/infibot/db"
	"github.com/onnwee/infibot/geminiapi"
	"github.com/onnwee/infibot/telemetry"
)

// maxMessageLength is the platform's message size limit.
const maxMessageLength = 2000

// generateMaxTokens caps AI responses.
const generateMaxTokens = 1024

// chatHistoryTurns is how many conversation turns /chat keeps per user.
const chatHistoryTurns = 10

// chatHistoryKey is the user_data field holding the serialized conversation.
const chatHistoryKey = "chat_history"

func (b *Bot) geminiCommands() []*Command {
	return []*Command{
		{
			Name:        "ask",
			Description: "Ask Gemini AI a question",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prompt",
					Description: "Your question or prompt for the AI",
					Required:    true,
				},
			},
			Run: b.runAsk,
		},
		{
			Name:        "chat",
			Description: "Chat with Gemini AI (remembers your conversation)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "Your message",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "reset",
					Description: "Forget the conversation before replying",
					Required:    false,
				},
			},
			Run: b.runChat,
		},
	}
}

func (b *Bot) runAsk(ctx context.Context, inv *Invocation) error {
	if b.gemini == nil {
		return ErrConfigMissing("Gemini AI is not configured. Please set the GEMINI_API_KEY.")
	}
	prompt := inv.StringOption("prompt")
	if prompt == "" {
		return ErrValidation("Please provide a prompt.")
	}

	// Generation routinely exceeds the immediate-response window.
	if err := inv.Defer(); err != nil {
		return err
	}

	var text string
	var err error
	telemetry.TimeFunc(upstreamObserver("gemini"), func() {
		text, err = b.gemini.Generate(ctx, prompt, generateMaxTokens)
	})
	if err != nil {
		return ErrUpstream("An error occurred while generating a response", err)
	}

	return b.sendChunked(inv, text)
}

// runChat is /ask with a per-user conversation persisted in user_data.
func (b *Bot) runChat(ctx context.Context, inv *Invocation) error {
	if b.gemini == nil {
		return ErrConfigMissing("Gemini AI is not configured. Please set the GEMINI_API_KEY.")
	}
	message := inv.StringOption("message")
	if message == "" {
		return ErrValidation("Please provide a message.")
	}

	if err := inv.Defer(); err != nil {
		return err
	}

	var history []geminiapi.Content
	if !inv.BoolOption("reset") {
		history = b.loadChatHistory(ctx, inv.UserID)
	}

	var text string
	var err error
	telemetry.TimeFunc(upstreamObserver("gemini"), func() {
		text, err = b.gemini.Chat(ctx, history, message, generateMaxTokens)
	})
	if err != nil {
		return ErrUpstream("An error occurred while generating a response", err)
	}

	history = append(history,
		geminiapi.Content{Role: "user", Parts: []geminiapi.Part{{Text: message}}},
		geminiapi.Content{Role: "model", Parts: []geminiapi.Part{{Text: text}}})
	b.saveChatHistory(ctx, inv.UserID, history)

	return b.sendChunked(inv, text)
}

// sendChunked delivers a possibly long response: the first chunk answers the
// deferred invocation, the rest go out as plain channel messages.
func (b *Bot) sendChunked(inv *Invocation, text string) error {
	chunks := chunk.Split(text, maxMessageLength)
	if len(chunks) == 0 {
		return ErrUpstream("An error occurred while generating a response", geminiapi.ErrEmptyResponse)
	}
	if err := inv.Followup(chunks[0]); err != nil {
		return err
	}
	for _, c := range chunks[1:] {
		if err := inv.SendChannel(c); err != nil {
			return err
		}
	}
	return nil
}

// loadChatHistory reads the stored conversation; failures degrade to an empty
// history rather than blocking the reply.
func (b *Bot) loadChatHistory(ctx context.Context, userID string) []geminiapi.Content {
	if b.db == nil {
		return nil
	}
	ud, err := db.GetUserData(ctx, b.db, userID)
	if err != nil {
		slog.Warn("chat history load failed", slog.Any("err", err), slog.String("user_id", userID))
		return nil
	}
	if ud == nil {
		return nil
	}
	raw, ok := ud.Data[chatHistoryKey]
	if !ok {
		return nil
	}
	var history []geminiapi.Content
	if err := json.Unmarshal(raw, &history); err != nil {
		slog.Warn("chat history decode failed", slog.Any("err", err), slog.String("user_id", userID))
		return nil
	}
	return history
}

// saveChatHistory persists the capped conversation best-effort; the reply was
// already generated and must not fail on a storage problem.
func (b *Bot) saveChatHistory(ctx context.Context, userID string, history []geminiapi.Content) {
	if b.db == nil {
		return
	}
	if len(history) > chatHistoryTurns*2 {
		history = history[len(history)-chatHistoryTurns*2:]
	}
	raw, err := json.Marshal(history)
	if err != nil {
		slog.Warn("chat history encode failed", slog.Any("err", err))
		return
	}

	ud, err := db.GetUserData(ctx, b.db, userID)
	if err != nil {
		slog.Warn("chat history save failed", slog.Any("err", err), slog.String("user_id", userID))
		return
	}
	data := map[string]json.RawMessage{}
	if ud != nil {
		data = ud.Data
	}
	data[chatHistoryKey] = raw

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := db.SetUserData(saveCtx, b.db, userID, data); err != nil {
		slog.Warn("chat history save failed", slog.Any("err", err), slog.String("user_id", userID))
	}
}

func upstreamObserver(service string) prometheus.Observer {
	if telemetry.UpstreamDuration == nil {
		return nil
	}
	return telemetry.UpstreamDuration.WithLabelValues(service)
}
