// Package buffer abstracts the editor buffer the assistant reads from and
// writes merged text back into.
package buffer

import "errors"

// ErrNoBuffer is returned when there is no buffer to read or write
var ErrNoBuffer = errors.New("no buffer open")

// Buffer is the text an analysis runs on
type Buffer interface {
	// Name is the path or label of the buffer, used to tag prompts
	Name() string
	ReadCurrentText() (string, error)
	WriteText(text string) error
}
