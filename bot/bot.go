// Package bot wires the Discord gateway to the command dispatcher: lifecycle
// orchestration, prefix and interaction routing, the confirmation workflow
// for destructive commands, and the error taxonomy wrapping every handler.
package bot

import (
	"database/sql"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/infibot/config"
	"github.com/onnwee/infibot/geminiapi"
	"github.com/onnwee/infibot/telemetry"
	"github.com/onnwee/infibot/w2gapi"
)

// Bot owns the process-wide shared state: storage handle, shared HTTP client,
// service adapters, command registry, and the gateway session.
type Bot struct {
	cfg        *config.Config
	db         *sql.DB
	httpClient *http.Client

	// gemini is nil when GEMINI_API_KEY is absent; dependent commands answer
	// with a feature-disabled message. w2g is always constructed: an empty
	// key is the API's unauthenticated rate-limited mode.
	gemini *geminiapi.Client
	w2g    *w2gapi.Client

	session  *discordgo.Session
	registry *Registry
	confirms *confirmations

	startTime time.Time
	shutdown  func()

	mu     sync.Mutex
	synced bool // slash commands registered with the platform this process
}

// New builds the bot: service adapters (conditional on credentials), command
// registry, and a configured but unopened gateway session.
func New(cfg *config.Config, database *sql.DB, httpClient *http.Client) (*Bot, error) {
	if err := cfg.ValidateDiscordReady(); err != nil {
		return nil, err
	}

	b := &Bot{
		cfg:        cfg,
		db:         database,
		httpClient: httpClient,
		registry:   NewRegistry(),
		confirms:   newConfirmations(),
		startTime:  time.Now().UTC(),
	}

	if cfg.GeminiAPIKey != "" {
		b.gemini = &geminiapi.Client{APIKey: cfg.GeminiAPIKey, HTTPClient: httpClient}
		slog.Info("gemini service initialized")
	} else {
		slog.Warn("GEMINI_API_KEY not set, /ask and /chat will be disabled")
	}
	b.w2g = &w2gapi.Client{APIKey: cfg.W2GAPIKey, HTTPClient: httpClient}

	if err := b.registerCommands(); err != nil {
		return nil, err
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	session.Client = httpClient

	session.AddHandler(b.onReady)
	session.AddHandler(b.onResumed)
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onInteractionCreate)

	b.session = session
	return b, nil
}

// registerCommands populates the routing table. Handler groups mirror the
// functional areas: general, AI, watch rooms, moderation, admin.
func (b *Bot) registerCommands() error {
	groups := [][]*Command{
		b.generalCommands(),
		b.geminiCommands(),
		b.watchCommands(),
		b.moderationCommands(),
		b.adminCommands(),
	}
	for _, group := range groups {
		for _, cmd := range group {
			if err := b.registry.Register(cmd); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetShutdown installs the callback used by the owner shutdown command to
// stop the process gracefully.
func (b *Bot) SetShutdown(fn func()) { b.shutdown = fn }

// Start opens the gateway connection. Command registration with the platform
// happens on the first READY event.
func (b *Bot) Start() error {
	return b.session.Open()
}

// Close closes the gateway connection.
func (b *Bot) Close() error {
	return b.session.Close()
}

// Registry exposes the command table (used by tests and the status endpoint).
func (b *Bot) Registry() *Registry { return b.registry }

// Uptime returns how long the bot has been running.
func (b *Bot) Uptime() time.Duration { return time.Since(b.startTime) }

// GuildCount returns the number of guilds in the session state.
func (b *Bot) GuildCount() int {
	if b.session == nil || b.session.State == nil {
		return 0
	}
	return len(b.session.State.Guilds)
}

// Synced reports whether slash commands have been registered this process.
func (b *Bot) Synced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.synced
}

// onReady synchronizes the slash command registry with the platform exactly
// once per process lifetime; reconnects re-enter here but the synced flag
// prevents re-registration.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("gateway ready",
		slog.String("user", r.User.Username),
		slog.String("user_id", r.User.ID),
		slog.Int("guilds", len(r.Guilds)))
	telemetry.SetGuildCount(len(r.Guilds))

	b.mu.Lock()
	alreadySynced := b.synced
	b.mu.Unlock()

	if !alreadySynced {
		cmds := b.registry.ApplicationCommands()
		registered, err := s.ApplicationCommandBulkOverwrite(r.User.ID, "", cmds)
		if err != nil {
			slog.Error("failed to sync slash commands", slog.Any("err", err))
		} else {
			names := make([]string, 0, len(registered))
			for _, c := range registered {
				names = append(names, c.Name)
			}
			slog.Info("synced slash commands globally", slog.Int("count", len(registered)), slog.Any("commands", names))
			b.mu.Lock()
			b.synced = true
			b.mu.Unlock()
		}
	}

	if err := s.UpdateWatchStatus(0, "for /help"); err != nil {
		slog.Warn("failed to set presence", slog.Any("err", err))
	}
}

func (b *Bot) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	slog.Info("gateway session resumed")
	if telemetry.GatewayReconnects != nil {
		telemetry.GatewayReconnects.Inc()
	}
}
