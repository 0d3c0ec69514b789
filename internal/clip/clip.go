// Package clip copies short strings, such as the path of a written report,
// to the user's clipboard.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is the mechanism that took the text.
type Method string

const (
	MethodNative Method = "native" // OS clipboard via github.com/atotto/clipboard
	MethodOSC52  Method = "osc52"  // terminal clipboard via the OSC52 escape sequence
)

// ErrUnavailable is returned when no mechanism could take the text.
var ErrUnavailable = errors.New("no clipboard available")

// Terminals drop larger OSC52 payloads.
const osc52LimitBytes = 100_000

// Copier tries the native clipboard first and falls back to OSC52 on a
// terminal, which also works over SSH.
type Copier struct {
	native   func(string) error
	terminal io.Writer
	isTTY    func() bool
	getenv   func(string) string
}

// New returns a copier using the OS clipboard and stderr.
func New() *Copier {
	return &Copier{
		native:   atotto.WriteAll,
		terminal: os.Stderr,
		isTTY:    func() bool { return term.IsTerminal(int(os.Stderr.Fd())) },
		getenv:   os.Getenv,
	}
}

// Copy puts text on the clipboard.
func (c *Copier) Copy(text string) (Method, error) {
	if text == "" {
		return "", errors.New("empty clipboard text")
	}
	nativeErr := c.native(text)
	if nativeErr == nil {
		return MethodNative, nil
	}
	if err := c.osc52(text); err != nil {
		return "", fmt.Errorf("%w: %w; %w", ErrUnavailable, nativeErr, err)
	}
	return MethodOSC52, nil
}

func (c *Copier) osc52(text string) error {
	if !c.isTTY() {
		return errors.New("not a terminal")
	}
	if len(text) > osc52LimitBytes {
		return fmt.Errorf("text too large for OSC52 (%d bytes > %d)", len(text), osc52LimitBytes)
	}

	seq := osc52.New(text).Limit(osc52LimitBytes)
	switch {
	case c.getenv("TMUX") != "":
		seq = seq.Tmux()
	case c.getenv("STY") != "":
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(c.terminal)
	return err
}
