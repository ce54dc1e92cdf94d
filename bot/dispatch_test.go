package bot

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/infibot/config"
	"github.com/onnwee/infibot/db"
)

// fakeResponder records what an invocation sent back to the user.
type fakeResponder struct {
	responses  []string
	followups  []string
	channel    []string
	ephemerals int
	deferred   bool
	acked      bool
}

func (f *fakeResponder) respond(content string, ephemeral bool) error {
	f.responses = append(f.responses, content)
	if ephemeral {
		f.ephemerals++
	}
	f.acked = true
	return nil
}

func (f *fakeResponder) respondEmbed(*discordgo.MessageEmbed) error {
	f.responses = append(f.responses, "<embed>")
	f.acked = true
	return nil
}

func (f *fakeResponder) respondComponents(content string, _ []discordgo.MessageComponent, ephemeral bool) error {
	return f.respond(content, ephemeral)
}

func (f *fakeResponder) deferResponse(bool) error {
	f.deferred = true
	f.acked = true
	return nil
}

func (f *fakeResponder) followup(content string, ephemeral bool) error {
	f.followups = append(f.followups, content)
	if ephemeral {
		f.ephemerals++
	}
	return nil
}

func (f *fakeResponder) followupEmbed(*discordgo.MessageEmbed) error {
	f.followups = append(f.followups, "<embed>")
	return nil
}

func (f *fakeResponder) editResponse(content string, _ bool) error {
	f.responses = append(f.responses, content)
	return nil
}

func (f *fakeResponder) sendChannel(content string) error {
	f.channel = append(f.channel, content)
	return nil
}

func (f *fakeResponder) acknowledged() bool { return f.acked }

func testBot(t *testing.T, cfg *config.Config) *Bot {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{DiscordPrefix: "!"}
	}
	return &Bot{
		cfg:      cfg,
		registry: NewRegistry(),
		confirms: newConfirmations(),
	}
}

func TestExecuteOwnerOnlyRejectsBeforeSideEffects(t *testing.T) {
	b := testBot(t, &config.Config{DiscordPrefix: "!", OwnerIDs: []string{"owner-1"}})

	ran := false
	cmd := &Command{
		Name:      "shutdown",
		OwnerOnly: true,
		Run: func(context.Context, *Invocation) error {
			ran = true
			return nil
		},
	}

	fr := &fakeResponder{}
	inv := &Invocation{UserID: "intruder", CommandName: "shutdown", r: fr}
	if ok := b.execute(context.Background(), cmd, inv, "text"); ok {
		t.Error("execute() = true for rejected invocation, want false")
	}
	if ran {
		t.Error("handler body ran despite owner-only rejection")
	}
	if len(fr.responses) != 1 || fr.responses[0] != "This command is owner-only." {
		t.Errorf("responses = %v, want the permission message", fr.responses)
	}
	if fr.ephemerals != 1 {
		t.Error("permission rejection should be ephemeral")
	}
}

func TestExecuteOwnerAllowed(t *testing.T) {
	b := testBot(t, &config.Config{DiscordPrefix: "!", OwnerIDs: []string{"owner-1"}})

	ran := false
	cmd := &Command{Name: "sync", OwnerOnly: true, Run: func(context.Context, *Invocation) error {
		ran = true
		return nil
	}}

	inv := &Invocation{UserID: "owner-1", CommandName: "sync", r: &fakeResponder{}}
	if ok := b.execute(context.Background(), cmd, inv, "interaction"); !ok {
		t.Error("execute() = false for owner, want true")
	}
	if !ran {
		t.Error("handler did not run for an owner")
	}
}

func TestExecuteClassifiedErrorReachesUser(t *testing.T) {
	b := testBot(t, nil)
	cmd := &Command{Name: "ask", Run: func(context.Context, *Invocation) error {
		return ErrConfigMissing("Gemini AI is not configured. Please set the GEMINI_API_KEY.")
	}}

	fr := &fakeResponder{}
	inv := &Invocation{UserID: "u", CommandName: "ask", r: fr}
	if ok := b.execute(context.Background(), cmd, inv, "interaction"); ok {
		t.Error("execute() = true for failed invocation, want false")
	}
	if len(fr.responses) != 1 || fr.responses[0] != "Gemini AI is not configured. Please set the GEMINI_API_KEY." {
		t.Errorf("responses = %v, want the configuration message", fr.responses)
	}
}

func TestExecuteErrorAfterDeferUsesFollowup(t *testing.T) {
	b := testBot(t, nil)
	cmd := &Command{Name: "ask", Run: func(_ context.Context, inv *Invocation) error {
		if err := inv.Defer(); err != nil {
			return err
		}
		return ErrValidation("Prompt is required.")
	}}

	fr := &fakeResponder{}
	inv := &Invocation{UserID: "u", CommandName: "ask", r: fr}
	b.execute(context.Background(), cmd, inv, "interaction")
	if len(fr.followups) != 1 || fr.followups[0] != "Prompt is required." {
		t.Errorf("followups = %v, want error delivered on the followup leg", fr.followups)
	}
	if len(fr.responses) != 0 {
		t.Errorf("responses = %v, want none after defer", fr.responses)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	b := testBot(t, nil)
	cmd := &Command{Name: "boom", Run: func(context.Context, *Invocation) error {
		panic("handler bug")
	}}

	fr := &fakeResponder{}
	inv := &Invocation{UserID: "u", CommandName: "boom", r: fr}
	if ok := b.execute(context.Background(), cmd, inv, "text"); ok {
		t.Error("execute() = true after panic, want false")
	}
	if len(fr.responses) != 1 {
		t.Errorf("responses = %v, want a generic failure message", fr.responses)
	}
}

func TestResolvePrefixes(t *testing.T) {
	b := testBot(t, &config.Config{DiscordPrefix: "!"})

	t.Run("default and mention forms", func(t *testing.T) {
		got := b.resolvePrefixes(context.Background(), "", "bot-1")
		want := []string{"!", "<@bot-1> ", "<@bot-1>", "<@!bot-1> ", "<@!bot-1>"}
		if len(got) != len(want) {
			t.Fatalf("resolvePrefixes() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("prefix[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("guild override first", func(t *testing.T) {
		database, err := db.Connect(t.TempDir() + "/prefix.db")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = database.Close() })
		ctx := context.Background()
		if _, err := db.Migrate(ctx, database); err != nil {
			t.Fatal(err)
		}
		if err := db.SetGuildPrefix(ctx, database, "guild-1", "?"); err != nil {
			t.Fatal(err)
		}

		b.db = database
		t.Cleanup(func() { b.db = nil })

		got := b.resolvePrefixes(ctx, "guild-1", "bot-1")
		if len(got) == 0 || got[0] != "?" {
			t.Errorf("resolvePrefixes() = %v, want guild override %q first", got, "?")
		}
		if got[1] != "!" {
			t.Errorf("default prefix must remain accepted, got %v", got)
		}
	})
}

func TestOnMessageCreateDispatch(t *testing.T) {
	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatal(err)
	}
	session.State.User = &discordgo.User{ID: "bot-1", Username: "infibot"}

	newMessage := func(author *discordgo.User, content string) *discordgo.MessageCreate {
		return &discordgo.MessageCreate{Message: &discordgo.Message{
			Author:    author,
			Content:   content,
			ChannelID: "chan-1",
			GuildID:   "",
		}}
	}
	human := &discordgo.User{ID: "user-1", Username: "alice"}

	tests := []struct {
		name     string
		author   *discordgo.User
		content  string
		wantRun  bool
		wantArgs []string
	}{
		{name: "default prefix", author: human, content: "!probe", wantRun: true},
		{name: "prefix with args", author: human, content: "!probe one two", wantRun: true, wantArgs: []string{"one", "two"}},
		{name: "mention prefix", author: human, content: "<@bot-1> probe", wantRun: true},
		{name: "uppercase command name", author: human, content: "!PROBE", wantRun: true},
		{name: "no prefix", author: human, content: "probe", wantRun: false},
		{name: "unknown command silent", author: human, content: "!nosuch", wantRun: false},
		{name: "bare prefix", author: human, content: "!", wantRun: false},
		{name: "bot author ignored", author: &discordgo.User{ID: "other-bot", Bot: true}, content: "!probe", wantRun: false},
		{name: "self ignored", author: &discordgo.User{ID: "bot-1"}, content: "!probe", wantRun: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBot(t, &config.Config{DiscordPrefix: "!"})
			var got *Invocation
			if err := b.registry.Register(&Command{Name: "probe", Run: func(_ context.Context, inv *Invocation) error {
				got = inv
				return nil
			}}); err != nil {
				t.Fatal(err)
			}

			b.onMessageCreate(session, newMessage(tt.author, tt.content))

			if tt.wantRun && got == nil {
				t.Fatal("command did not run")
			}
			if !tt.wantRun && got != nil {
				t.Fatal("command ran unexpectedly")
			}
			if got != nil && len(tt.wantArgs) > 0 {
				if len(got.Args) != len(tt.wantArgs) {
					t.Fatalf("Args = %v, want %v", got.Args, tt.wantArgs)
				}
				for i := range tt.wantArgs {
					if got.Args[i] != tt.wantArgs[i] {
						t.Errorf("Args[%d] = %q, want %q", i, got.Args[i], tt.wantArgs[i])
					}
				}
			}
		})
	}
}

// recordingTransport captures outbound REST calls and answers them with an
// empty success so no request leaves the test process.
type recordingTransport struct {
	bodies []string
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body := ""
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		body = string(raw)
	}
	rt.bodies = append(rt.bodies, body)
	return &http.Response{
		StatusCode: http.StatusNoContent,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
	}, nil
}

func TestHandleApplicationCommandUnknownStillResponds(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{name: "unregistered name", command: "nosuch"},
		{name: "text-only command", command: "shutdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := discordgo.New("Bot test-token")
			if err != nil {
				t.Fatal(err)
			}
			rt := &recordingTransport{}
			session.Client = &http.Client{Transport: rt}

			b := testBot(t, nil)
			if err := b.registry.Register(&Command{Name: "shutdown", TextOnly: true, Run: func(context.Context, *Invocation) error {
				t.Error("text-only handler ran on the interaction surface")
				return nil
			}}); err != nil {
				t.Fatal(err)
			}

			i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
				ID:        "inter-1",
				Token:     "tok",
				Type:      discordgo.InteractionApplicationCommand,
				ChannelID: "chan-1",
				User:      &discordgo.User{ID: "user-1", Username: "alice"},
				Data:      discordgo.ApplicationCommandInteractionData{Name: tt.command},
			}}

			b.handleApplicationCommand(context.Background(), session, i)

			if len(rt.bodies) != 1 {
				t.Fatalf("REST calls = %d, want one interaction response", len(rt.bodies))
			}
			if !strings.Contains(rt.bodies[0], "This command is no longer available.") {
				t.Errorf("response body = %q, want the unavailable notice", rt.bodies[0])
			}
			if !strings.Contains(rt.bodies[0], `"flags":64`) {
				t.Errorf("response body = %q, want the ephemeral flag", rt.bodies[0])
			}
		})
	}
}

func TestParseConfirmID(t *testing.T) {
	tests := []struct {
		name       string
		customID   string
		wantNonce  string
		wantChoice string
		wantOK     bool
	}{
		{name: "round trip yes", customID: confirmCustomID("abc-123", "yes"), wantNonce: "abc-123", wantChoice: "yes", wantOK: true},
		{name: "round trip no", customID: confirmCustomID("abc-123", "no"), wantNonce: "abc-123", wantChoice: "no", wantOK: true},
		{name: "wrong namespace", customID: "vote:abc:yes", wantOK: false},
		{name: "missing parts", customID: "confirm:abc", wantOK: false},
		{name: "empty", customID: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nonce, choice, ok := parseConfirmID(tt.customID)
			if ok != tt.wantOK {
				t.Fatalf("parseConfirmID() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (nonce != tt.wantNonce || choice != tt.wantChoice) {
				t.Errorf("parseConfirmID() = %q, %q; want %q, %q", nonce, choice, tt.wantNonce, tt.wantChoice)
			}
		})
	}
}

func TestSerializeOptions(t *testing.T) {
	if got := serializeOptions(nil); got != "" {
		t.Errorf("serializeOptions(nil) = %q, want empty", got)
	}

	opts := map[string]*discordgo.ApplicationCommandInteractionDataOption{
		"prompt": {Name: "prompt", Type: discordgo.ApplicationCommandOptionString, Value: "hello"},
	}
	got := serializeOptions(opts)
	if got != `{"prompt":"hello"}` {
		t.Errorf("serializeOptions() = %q, want JSON of name to value", got)
	}
}
