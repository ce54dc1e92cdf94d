package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

// fakePurger simulates a channel with a fixed number of recent messages.
type fakePurger struct {
	remaining   int
	fetches     int
	deleteCalls int
	deleted     int

	// failOnDeleteCall makes the nth delete call (1-based) fail.
	failOnDeleteCall int
	stale            bool // serve messages older than the bulk-delete cutoff
}

func (f *fakePurger) ChannelMessages(_ string, limit int, _, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.fetches++
	n := limit
	if f.remaining < n {
		n = f.remaining
	}
	ts := time.Now()
	if f.stale {
		ts = ts.Add(-15 * 24 * time.Hour)
	}
	msgs := make([]*discordgo.Message, n)
	for i := range msgs {
		msgs[i] = &discordgo.Message{ID: fmt.Sprintf("msg-%d", f.deleted+i), Timestamp: ts}
	}
	return msgs, nil
}

func (f *fakePurger) ChannelMessagesBulkDelete(_ string, messages []string, _ ...discordgo.RequestOption) error {
	f.deleteCalls++
	if f.failOnDeleteCall > 0 && f.deleteCalls == f.failOnDeleteCall {
		return errors.New("50013 missing permissions")
	}
	f.deleted += len(messages)
	f.remaining -= len(messages)
	return nil
}

func (f *fakePurger) ChannelMessageDelete(_, _ string, _ ...discordgo.RequestOption) error {
	f.deleteCalls++
	if f.failOnDeleteCall > 0 && f.deleteCalls == f.failOnDeleteCall {
		return errors.New("50013 missing permissions")
	}
	f.deleted++
	f.remaining--
	return nil
}

func TestPurgeChannelBatches(t *testing.T) {
	// 250 deletable messages: three fetches of 100, 100, 50 and a total of 250.
	p := &fakePurger{remaining: 250}
	total, err := purgeChannel(p, "chan-1")
	if err != nil {
		t.Fatalf("purgeChannel() error: %v", err)
	}
	if total != 250 {
		t.Errorf("total = %d, want 250", total)
	}
	if p.fetches != 3 {
		t.Errorf("fetches = %d, want 3", p.fetches)
	}
	if p.deleteCalls != 3 {
		t.Errorf("delete calls = %d, want 3 (100, 100, 50)", p.deleteCalls)
	}
}

func TestPurgeChannelEmpty(t *testing.T) {
	p := &fakePurger{remaining: 0}
	total, err := purgeChannel(p, "chan-1")
	if err != nil {
		t.Fatalf("purgeChannel() error: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	if p.deleteCalls != 0 {
		t.Errorf("delete calls = %d, want 0", p.deleteCalls)
	}
}

func TestPurgeChannelShortFinalBatch(t *testing.T) {
	p := &fakePurger{remaining: 42}
	total, err := purgeChannel(p, "chan-1")
	if err != nil {
		t.Fatal(err)
	}
	if total != 42 {
		t.Errorf("total = %d, want 42", total)
	}
	if p.fetches != 1 {
		t.Errorf("fetches = %d, want 1 (short batch signals exhaustion)", p.fetches)
	}
}

func TestPurgeChannelMidRunFailure(t *testing.T) {
	// The third delete call fails: the reported total is the sum of the two
	// successful batches only, and the loop does not retry.
	p := &fakePurger{remaining: 250, failOnDeleteCall: 3}
	total, err := purgeChannel(p, "chan-1")
	if err == nil {
		t.Fatal("purgeChannel() expected error from failing batch")
	}
	if total != 200 {
		t.Errorf("total = %d, want 200 (successful batches only)", total)
	}
}

func TestPurgeChannelFetchFailure(t *testing.T) {
	p := &failingFetcher{}
	total, err := purgeChannel(p, "chan-1")
	if err == nil {
		t.Fatal("purgeChannel() expected fetch error")
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}

type failingFetcher struct{}

func (f *failingFetcher) ChannelMessages(string, int, string, string, string, ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	return nil, errors.New("gateway unavailable")
}

func (f *failingFetcher) ChannelMessagesBulkDelete(string, []string, ...discordgo.RequestOption) error {
	return nil
}

func (f *failingFetcher) ChannelMessageDelete(string, string, ...discordgo.RequestOption) error {
	return nil
}

func TestPurgeChannelOldMessagesDeletedIndividually(t *testing.T) {
	// Messages past the bulk-delete age limit fall back to one-by-one deletes.
	p := &fakePurger{remaining: 3, stale: true}
	total, err := purgeChannel(p, "chan-1")
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if p.deleteCalls != 3 {
		t.Errorf("delete calls = %d, want 3 individual deletes", p.deleteCalls)
	}
}

func TestPurgeChannelSingleRecentMessage(t *testing.T) {
	// Bulk delete rejects single-message payloads, so one leftover recent
	// message must go through the single-delete path.
	p := &fakePurger{remaining: 1}
	total, err := purgeChannel(p, "chan-1")
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if p.deleteCalls != 1 {
		t.Errorf("delete calls = %d, want 1", p.deleteCalls)
	}
}

// promptClickResponder presses Cancel the instant the confirmation prompt is
// published, before runPurge has returned from sending it.
type promptClickResponder struct {
	fakeResponder
	b     *Bot
	found bool
}

func (c *promptClickResponder) respondComponents(content string, comps []discordgo.MessageComponent, ephemeral bool) error {
	if err := c.fakeResponder.respondComponents(content, nil, ephemeral); err != nil {
		return err
	}
	row, ok := comps[0].(discordgo.ActionsRow)
	if !ok || len(row.Components) != 2 {
		return errors.New("prompt is missing its button row")
	}
	cancel, ok := row.Components[1].(discordgo.Button)
	if !ok {
		return errors.New("second component is not the cancel button")
	}
	nonce, choice, ok := parseConfirmID(cancel.CustomID)
	if !ok || choice != "no" {
		return fmt.Errorf("cancel button custom id = %q", cancel.CustomID)
	}
	conf, ok := c.b.confirms.lookup(nonce)
	if !ok {
		return nil // registration raced the prompt; the test asserts on found
	}
	c.found = true
	conf.Resolve(OutcomeDeclined)
	return nil
}

func TestRunPurgeConfirmationLiveAtPromptTime(t *testing.T) {
	b := testBot(t, nil)
	fr := &promptClickResponder{b: b}
	inv := &Invocation{UserID: "user-1", ChannelID: "chan-1", GuildID: "guild-1", CommandName: "purge", r: fr}

	if err := b.runPurge(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if !fr.found {
		t.Fatal("confirmation was not registered when the prompt went out")
	}
	last := fr.responses[len(fr.responses)-1]
	if last != "Purge cancelled." {
		t.Errorf("final response = %q, want the decline message", last)
	}
}
