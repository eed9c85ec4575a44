package decision

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedSource replays a fixed sequence of replies. It exists for tests
// and offline dry runs where a run must follow a known path; it also
// records every snapshot it was shown so assertions can inspect what the
// loop sent out.
type ScriptedSource struct {
	mu        sync.Mutex
	replies   []string
	index     int
	Snapshots []Snapshot
}

// NewScriptedSource creates a source that returns the replies in order.
func NewScriptedSource(replies ...string) *ScriptedSource {
	return &ScriptedSource{replies: replies}
}

// Decide returns the next scripted reply. Running past the script is a
// hard error: a test that asks for more decisions than it scripted is
// broken.
func (s *ScriptedSource) Decide(ctx context.Context, snapshot Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Snapshots = append(s.Snapshots, snapshot)
	if s.index >= len(s.replies) {
		return "", fmt.Errorf("scripted source exhausted after %d replies", len(s.replies))
	}
	reply := s.replies[s.index]
	s.index++
	return reply, nil
}
