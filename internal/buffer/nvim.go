package buffer

import (
	"fmt"
	"strings"

	"github.com/neovim/go-client/nvim"

	"github.com/elixir-editor/assist/internal/logging"
)

// neovimAPI is the part of *nvim.Nvim the buffer uses
type neovimAPI interface {
	CurrentBuffer() (nvim.Buffer, error)
	BufferName(buffer nvim.Buffer) (string, error)
	BufferLines(buffer nvim.Buffer, start, end int, strict bool) ([][]byte, error)
	SetBufferLines(buffer nvim.Buffer, start, end int, strict bool, replacement [][]byte) error
}

// NvimBuffer reads and replaces the current buffer of a running Neovim
type NvimBuffer struct {
	api    neovimAPI
	closer func() error
}

// DialNvim connects to the Neovim instance listening at addr (a socket path
// or host:port, as in $NVIM).
func DialNvim(addr string) (*NvimBuffer, error) {
	v, err := nvim.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nvim at %s: %w", addr, err)
	}
	logging.Info("connected to nvim at %s", addr)
	return &NvimBuffer{api: v, closer: v.Close}, nil
}

// Close disconnects from Neovim
func (b *NvimBuffer) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

func (b *NvimBuffer) Name() string {
	buf, err := b.api.CurrentBuffer()
	if err != nil {
		return ""
	}
	name, err := b.api.BufferName(buf)
	if err != nil {
		return ""
	}
	return name
}

func (b *NvimBuffer) ReadCurrentText() (string, error) {
	buf, err := b.api.CurrentBuffer()
	if err != nil {
		return "", fmt.Errorf("failed to get current buffer: %w", err)
	}
	lines, err := b.api.BufferLines(buf, 0, -1, true)
	if err != nil {
		return "", fmt.Errorf("failed to read buffer lines: %w", err)
	}

	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = string(l)
	}
	return strings.Join(parts, "\n"), nil
}

// WriteText replaces every line of the current buffer
func (b *NvimBuffer) WriteText(text string) error {
	buf, err := b.api.CurrentBuffer()
	if err != nil {
		return fmt.Errorf("failed to get current buffer: %w", err)
	}

	// the final newline is implied by the buffer's 'eol' option
	parts := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	lines := make([][]byte, len(parts))
	for i, p := range parts {
		lines[i] = []byte(p)
	}

	if err := b.api.SetBufferLines(buf, 0, -1, true, lines); err != nil {
		return fmt.Errorf("failed to set buffer lines: %w", err)
	}
	return nil
}
