package avr

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple power", input: "PWON", want: "PWON"},
		{name: "volume with digits", input: "MV45", want: "MV45"},
		{name: "directional suffix", input: "MVUP", want: "MVUP"},
		{name: "off suffix", input: "MUOFF", want: "MUOFF"},
		{name: "lowercase uppercased", input: "pwon", want: "PWON"},
		{name: "surrounding whitespace trimmed", input: "  PWON  ", want: "PWON"},
		{name: "letters only", input: "SIPHONO", want: "SIPHONO"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "too long", input: strings.Repeat("A", 51), wantErr: true},
		{name: "query not allowed from users", input: "MV?", wantErr: true},
		{name: "shell metacharacters", input: "PWON;rm -rf /", wantErr: true},
		{name: "pipe", input: "PWON|cat", wantErr: true},
		{name: "backtick", input: "PW`id`", wantErr: true},
		{name: "single letter prefix", input: "P1", wantErr: true},
		{name: "too many letters", input: "ABCDEFGHIJK", wantErr: true},
		{name: "four digit suffix", input: "MV1234", wantErr: true},
		{name: "embedded space", input: "PW ON", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateCommand(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ValidateCommand(%q) expected error, got %q", tt.input, got)
				}
				if !errors.Is(err, ErrInvalidCommand) {
					t.Errorf("error = %v, want ErrInvalidCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateCommand(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateCommand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateSequence(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "single token", input: "PWON", want: "PWON"},
		{name: "multi token", input: "pwon\nmv45", want: "PWON\nMV45"},
		{name: "blank segments dropped", input: "PWON\n\nMV45\n", want: "PWON\nMV45"},
		{name: "empty", input: "", wantErr: true},
		{name: "only blanks", input: "\n\n", wantErr: true},
		{name: "one bad token fails all", input: "PWON\nMV?", wantErr: true},
		{name: "too many tokens", input: strings.Repeat("PWON\n", 11), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateSequence(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Fatalf("ValidateSequence(%q) error = %v, want ErrInvalidCommand", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateSequence(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateSequence(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
