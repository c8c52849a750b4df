package gateway

import "strings"

// ACL gates who may issue control (admin-only) and slash (per-scope)
// commands on a recipient.
type ACL interface {
	AllowControl(senderID string) bool
	AllowSlash(senderID, scope string) bool
}

// CommandKind classifies a peeled inbound message.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandControl
	CommandSlash
	CommandBackgroundSubmit
)

// ParsedCommand is the result of peeling a ChannelMessage's content.
type ParsedCommand struct {
	Kind  CommandKind
	Name  string
	Scope string
	Body  string
}

var controlCommands = map[string]bool{
	"reset": true, "resume": true, "help": true, "status": true,
}

var backgroundPrefixes = []string{"/bg", "/research"}

// PeelCommand classifies content: a known session-control name first, then
// the background-submit prefixes (/bg, /research), and any other
// "/"-prefixed content is a slash command scoped by its name; content
// without a leading "/" is a plain forward.
func PeelCommand(content string) ParsedCommand {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "/") {
		return ParsedCommand{Kind: CommandNone, Body: content}
	}
	fields := strings.Fields(trimmed)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))

	if controlCommands[name] {
		return ParsedCommand{Kind: CommandControl, Name: name, Body: rest}
	}
	for _, prefix := range backgroundPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return ParsedCommand{Kind: CommandBackgroundSubmit, Name: name, Body: rest}
		}
	}
	return ParsedCommand{Kind: CommandSlash, Name: name, Scope: name, Body: rest}
}
