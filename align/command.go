package align

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// CommandKind is the operator command delivered by a transport
type CommandKind string

const (
	CommandSet   CommandKind = "set"
	CommandReset CommandKind = "reset"
)

// Command is a decoded operator command
type Command struct {
	Kind   CommandKind  `json:"command"`
	Target AnchorTarget `json:"target,omitempty"`
}

// Execute runs the command against the controller.
func (cmd Command) Execute(c *Controller) (Outcome, error) {
	switch cmd.Kind {
	case CommandSet:
		return c.Set(cmd.Target)
	case CommandReset:
		c.Reset()
		return Outcome{Completion: CompletionNone}, nil
	}
	return Outcome{}, fmt.Errorf("unknown command %q", cmd.Kind)
}

// commandPayload is the JSON object form of a command
type commandPayload struct {
	Command string `json:"command"`
	Type    string `json:"type"`
	Target  string `json:"target"`
}

// ParseCommand decodes a command payload. Accepted forms:
//
//	{"target": "B1"}                 set B1
//	{"command": "set", "target": "b2"}
//	{"command": "reset"} or {"type": "reset"}
//	"B1", "reset"                    JSON strings
//	B1, reset                        raw text
func ParseCommand(payload []byte) (Command, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Command{}, fmt.Errorf("empty command payload")
	}

	var text string
	switch trimmed[0] {
	case '{':
		var p commandPayload
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return Command{}, fmt.Errorf("parsing command: %w", err)
		}
		kind := p.Command
		if kind == "" {
			kind = p.Type
		}
		return commandFrom(kind, p.Target)
	case '"':
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return Command{}, fmt.Errorf("parsing command: %w", err)
		}
	default:
		text = string(trimmed)
	}

	fields := strings.Fields(text)
	switch len(fields) {
	case 1:
		if strings.EqualFold(fields[0], string(CommandReset)) {
			return Command{Kind: CommandReset}, nil
		}
		return commandFrom("", fields[0])
	case 2:
		return commandFrom(fields[0], fields[1])
	}
	return Command{}, fmt.Errorf("unrecognized command %q", text)
}

func commandFrom(kind, target string) (Command, error) {
	switch CommandKind(strings.ToLower(kind)) {
	case CommandReset:
		return Command{Kind: CommandReset}, nil
	case "", CommandSet:
		t, err := ParseAnchorTarget(target)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandSet, Target: t}, nil
	}
	return Command{}, fmt.Errorf("unknown command %q", kind)
}

// ParseHit decodes a hit-test payload. A nil result with a nil error means the source
// reported no surface. Accepted forms:
//
//	{"x": 1, "y": 0, "z": 2}         y defaults to 0
//	{"position": {...}} or {"position": null}
//	[1, 0, 2]
//	null, empty payload              no surface
func ParseHit(payload []byte) (*Vec3, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var coords []float64
		if err := json.Unmarshal(trimmed, &coords); err != nil {
			return nil, fmt.Errorf("parsing hit: %w", err)
		}
		if len(coords) != 3 {
			return nil, fmt.Errorf("parsing hit: want 3 coordinates, got %d", len(coords))
		}
		return &Vec3{X: coords[0], Y: coords[1], Z: coords[2]}, nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, fmt.Errorf("parsing hit: %w", err)
		}
		if raw, ok := fields["position"]; ok {
			return ParseHit(raw)
		}
		var v struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
			Z *float64 `json:"z"`
		}
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, fmt.Errorf("parsing hit: %w", err)
		}
		if v.X == nil || v.Z == nil {
			return nil, fmt.Errorf("parsing hit: x and z are required")
		}
		hit := &Vec3{X: *v.X, Z: *v.Z}
		if v.Y != nil {
			hit.Y = *v.Y
		}
		return hit, nil
	}
	return nil, fmt.Errorf("parsing hit: unexpected payload %q", trimmed)
}
