package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc executes a command invocation.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

// Command is one entry in the routing table, shared by both invocation
// surfaces: text messages route by name after prefix resolution, slash
// interactions route by their declared name.
type Command struct {
	Name        string
	Description string
	Options     []*discordgo.ApplicationCommandOption
	// DefaultPermissions restricts who sees the slash command in guilds
	// (discordgo.Permission* bits). Nil means everyone.
	DefaultPermissions *int64
	// OwnerOnly commands are checked against the configured owner set before
	// any handler side effect.
	OwnerOnly bool
	// TextOnly commands are not registered with the platform as slash commands.
	TextOnly bool
	Run      HandlerFunc
}

// Registry is the declarative command table, populated once at startup.
// Replace allows swapping an entry during development without re-dispatching
// through module reloads; it excludes concurrent dispatch to that entry via
// the same lock Lookup takes.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds a command. Duplicate names are a startup bug.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil || cmd.Name == "" || cmd.Run == nil {
		return fmt.Errorf("invalid command registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		return fmt.Errorf("command %q already registered", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	r.order = append(r.order, cmd.Name)
	return nil
}

// Replace swaps an existing entry under the registry lock.
func (r *Registry) Replace(cmd *Command) error {
	if cmd == nil || cmd.Name == "" || cmd.Run == nil {
		return fmt.Errorf("invalid command registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; !exists {
		return fmt.Errorf("command %q not registered", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

// Lookup resolves a command by name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// All returns commands in registration order.
func (r *Registry) All() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.commands[name])
	}
	return out
}

// ApplicationCommands builds the platform registration payload, skipping
// text-only commands.
func (r *Registry) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*discordgo.ApplicationCommand, 0, len(r.order))
	for _, name := range r.order {
		cmd := r.commands[name]
		if cmd.TextOnly {
			continue
		}
		out = append(out, &discordgo.ApplicationCommand{
			Name:                     cmd.Name,
			Description:              cmd.Description,
			Options:                  cmd.Options,
			DefaultMemberPermissions: cmd.DefaultPermissions,
		})
	}
	return out
}
