package buffer

import "sync"

// MemoryBuffer holds text in memory. Hosts that send buffer contents inline
// use it, as do tests.
type MemoryBuffer struct {
	mu     sync.RWMutex
	name   string
	text   string
	writes int
}

func NewMemoryBuffer(name, text string) *MemoryBuffer {
	return &MemoryBuffer{name: name, text: text}
}

func (b *MemoryBuffer) Name() string {
	return b.name
}

func (b *MemoryBuffer) ReadCurrentText() (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text, nil
}

func (b *MemoryBuffer) WriteText(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	b.writes++
	return nil
}

// SetText replaces the text without counting as a write
func (b *MemoryBuffer) SetText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
}

// Writes returns how many times WriteText was called
func (b *MemoryBuffer) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}
