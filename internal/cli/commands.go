// Package cli implements the foundry subcommands and their routing.
package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Command represents a CLI subcommand.
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
}

// Router dispatches subcommands.
type Router struct {
	commands map[string]*Command
	fallback string
}

// NewRouter creates a router that runs fallback when no command is given.
func NewRouter(fallback string) *Router {
	return &Router{
		commands: make(map[string]*Command),
		fallback: fallback,
	}
}

// Register adds a command to the router.
func (r *Router) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
}

// Dispatch routes to the correct command or returns an error.
func (r *Router) Dispatch(ctx context.Context, args []string) error {
	name := r.fallback
	if len(args) > 0 {
		name, args = args[0], args[1:]
	}
	if name == "" {
		return fmt.Errorf("no command specified")
	}

	cmd, ok := r.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q\n\n%s", name, r.Usage())
	}

	return cmd.Run(ctx, args)
}

// HasCommand checks if a command is registered.
func (r *Router) HasCommand(name string) bool {
	_, ok := r.commands[name]
	return ok
}

// Usage returns usage text for all commands, sorted by name.
func (r *Router) Usage() string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-12s %s\n", name, r.commands[name].Description)
	}
	return b.String()
}
