package clip

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeCopier(nativeErr error, tty bool, env map[string]string) (*Copier, *bytes.Buffer, *[]string) {
	var out bytes.Buffer
	var native []string
	return &Copier{
		native: func(s string) error {
			if nativeErr != nil {
				return nativeErr
			}
			native = append(native, s)
			return nil
		},
		terminal: &out,
		isTTY:    func() bool { return tty },
		getenv:   func(k string) string { return env[k] },
	}, &out, &native
}

func TestCopy_Native(t *testing.T) {
	c, out, native := fakeCopier(nil, true, nil)

	method, err := c.Copy("/tmp/report.zip")
	require.NoError(t, err)
	assert.Equal(t, MethodNative, method)
	assert.Equal(t, []string{"/tmp/report.zip"}, *native)
	assert.Zero(t, out.Len())
}

func TestCopy_FallsBackToOSC52(t *testing.T) {
	c, out, _ := fakeCopier(errors.New("no xclip"), true, nil)

	method, err := c.Copy("/tmp/report.zip")
	require.NoError(t, err)
	assert.Equal(t, MethodOSC52, method)
	assert.Contains(t, out.String(), base64.StdEncoding.EncodeToString([]byte("/tmp/report.zip")))
}

func TestCopy_OSC52InTmux(t *testing.T) {
	c, out, _ := fakeCopier(errors.New("no xclip"), true, map[string]string{"TMUX": "/tmp/tmux-1000/default"})

	_, err := c.Copy("x")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.String(), "\x1bPtmux;"), "expected tmux passthrough, got %q", out.String())
}

func TestCopy_Unavailable(t *testing.T) {
	c, out, _ := fakeCopier(errors.New("no xclip"), false, nil)

	_, err := c.Copy("x")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, out.Len())
}

func TestCopy_TooLargeForOSC52(t *testing.T) {
	c, _, _ := fakeCopier(errors.New("no xclip"), true, nil)

	_, err := c.Copy(strings.Repeat("a", osc52LimitBytes+1))
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCopy_Empty(t *testing.T) {
	c, _, _ := fakeCopier(nil, true, nil)

	_, err := c.Copy("")
	assert.Error(t, err)
}
