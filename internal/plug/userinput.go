package plug

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// UserInput prompts the station operator on the console. Its most common job
// is serving as the default DUT-ID start trigger.
type UserInput struct {
	rl *readline.Instance
}

// NewUserInput opens a readline session on the controlling terminal.
func NewUserInput() (*UserInput, error) {
	rl, err := readline.New("> ")
	if err != nil {
		return nil, fmt.Errorf("opening operator console: %w", err)
	}
	return &UserInput{rl: rl}, nil
}

// Prompt displays message and blocks until the operator answers. An empty
// answer is returned as-is; the caller decides whether that is acceptable.
func (u *UserInput) Prompt(message string) (string, error) {
	u.rl.SetPrompt(message + " ")
	line, err := u.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt || err == io.EOF {
			return "", fmt.Errorf("operator prompt interrupted: %w", err)
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PromptDUTID asks for a DUT identifier, re-prompting on empty input.
func (u *UserInput) PromptDUTID() (string, error) {
	for {
		id, err := u.Prompt("Enter DUT identifier:")
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
}

// TearDown closes the readline session.
func (u *UserInput) TearDown() {
	_ = u.rl.Close()
}
