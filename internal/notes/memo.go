package notes

import "sync"

// WriterMemo holds the last note written for the slide in progress.
// The orchestrator owns it and resets it once the slide is committed.
type WriterMemo struct {
	mu   sync.Mutex
	last string
}

func (m *WriterMemo) Record(note string) {
	if m == nil || note == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = note
}

func (m *WriterMemo) Last() (string, bool) {
	if m == nil {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.last != ""
}

func (m *WriterMemo) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = ""
}
