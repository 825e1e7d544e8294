package tui

import (
	"fmt"
	"strconv"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// commandNames are offered for completion in the prompt.
var commandNames = []string{
	"attach", "dm", "help", "info", "open", "quit",
	"retry", "roster", "search", "status", "toggle",
}

var commandAliases = map[string]string{
	"o": "open",
	"s": "search",
	"h": "help",
	"q": "quit",
	"p": "roster",
	"d": "info",
}

// ParseCommand parses a command string (without the leading ':').
// Aliases resolve to their full name.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if full, ok := commandAliases[cmd.Name]; ok {
		cmd.Name = full
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Fields splits the arguments on whitespace.
func (c Command) Fields() []string {
	return strings.Fields(c.Args)
}

// Index parses the argument as a 1-based tray position.
func (c Command) Index() (int, error) {
	n, err := strconv.Atoi(c.Args)
	if err != nil || n < 1 {
		return 0, fmt.Errorf(":%s wants a position, got %q", c.Name, c.Args)
	}
	return n, nil
}
