package console

import (
	"bytes"
	"sync"
)

const defaultLogLines = 500

// LogBuffer keeps the most recent log lines for display. It is an io.Writer
// so it can sit behind the process logger.
type LogBuffer struct {
	mu       sync.Mutex
	lines    []string
	capacity int
	head     int
	count    int
	partial  []byte
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = defaultLogLines
	}
	return &LogBuffer{lines: make([]string, capacity), capacity: capacity}
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		b.push(string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	b.partial = append([]byte(nil), data...)
	return len(p), nil
}

// Last returns up to n of the newest complete lines, oldest first.
func (b *LogBuffer) Last(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}
	out := make([]string, 0, n)
	start := (b.head - n + b.capacity) % b.capacity
	for i := 0; i < n; i++ {
		out = append(out, b.lines[(start+i)%b.capacity])
	}
	return out
}

// push must be called with b.mu held.
func (b *LogBuffer) push(line string) {
	b.lines[b.head] = line
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}
