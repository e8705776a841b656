package avr

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// maxCommandLength bounds a single user-supplied token.
	maxCommandLength = 50

	// maxSequenceTokens bounds how many tokens a user-supplied
	// multi-line sequence may contain.
	maxSequenceTokens = 10
)

// commandPattern is the shape of a valid protocol token: 2-10 uppercase
// letters with an optional numeric or directional suffix.
var commandPattern = regexp.MustCompile(`^[A-Z]{2,10}(?:\d{0,3}|UP|DOWN|ON|OFF)?$`)

// forbiddenChars are control and shell metacharacters rejected outright
// in user input, regardless of pattern shape.
const forbiddenChars = "\x00\r\n;|&`$\\<>()[]{}"

// ValidateCommand checks and sanitises a single user-supplied token.
//
// Input is trimmed and uppercased. Empty input, input over the length
// bound, forbidden characters, and tokens not matching the protocol
// shape are rejected with ErrInvalidCommand.
//
// Only free-text user commands pass through here; command table entries
// and internal query tokens are trusted.
func ValidateCommand(raw string) (string, error) {
	cmd := strings.ToUpper(strings.TrimSpace(raw))

	if cmd == "" {
		return "", fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	if len(cmd) > maxCommandLength {
		return "", fmt.Errorf("%w: command exceeds %d characters", ErrInvalidCommand, maxCommandLength)
	}
	if strings.ContainsAny(cmd, forbiddenChars) {
		return "", fmt.Errorf("%w: command contains forbidden characters", ErrInvalidCommand)
	}
	if !commandPattern.MatchString(cmd) {
		return "", fmt.Errorf("%w: %q does not match the expected token shape", ErrInvalidCommand, cmd)
	}
	return cmd, nil
}

// ValidateSequence checks and sanitises a user-supplied multi-line
// command sequence. Each newline-separated segment is validated as a
// single token; blank segments are dropped. The sanitised sequence is
// returned with tokens rejoined by newlines.
func ValidateSequence(raw string) (string, error) {
	parts := strings.Split(raw, "\n")

	var tokens []string
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		token, err := ValidateCommand(part)
		if err != nil {
			return "", err
		}
		tokens = append(tokens, token)
	}

	if len(tokens) == 0 {
		return "", fmt.Errorf("%w: empty command", ErrInvalidCommand)
	}
	if len(tokens) > maxSequenceTokens {
		return "", fmt.Errorf("%w: sequence exceeds %d commands", ErrInvalidCommand, maxSequenceTokens)
	}
	return strings.Join(tokens, "\n"), nil
}
