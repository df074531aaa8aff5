// Package errbuf collects the two buffers a run reports alongside its
// counters: diagnostic lines from the encrypt/compress child processes (plus
// unmatched archiver stderr lines), and informational messages such as
// volume-retirement notices (spec.md §4.1 I2, §4.7).
package errbuf

import "sync"

// Buffer is safe for concurrent append from AckReader, the two error-drain
// goroutines, and the driver.
type Buffer struct {
	mu       sync.Mutex
	errors   []string
	messages []string
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// AddError appends a diagnostic line.
func (b *Buffer) AddError(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, line)
}

// AddMessage appends an informational message.
func (b *Buffer) AddMessage(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, line)
}

// Errors returns a copy of the accumulated error lines.
func (b *Buffer) Errors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.errors))
	copy(out, b.errors)
	return out
}

// Messages returns a copy of the accumulated informational messages.
func (b *Buffer) Messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.messages))
	copy(out, b.messages)
	return out
}
