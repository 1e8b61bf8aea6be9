//go:build e2e

package e2e

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/testcontainers/testcontainers-go"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func StripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

type LogSource string

type logKey struct {
	node   string
	source LogSource
}

const (
	SourceStdout LogSource = "stdout"
	SourceStderr LogSource = "stderr"
)

// LogSubscription fires MatchCh once its pattern appears in the output of
// one node.
type LogSubscription struct {
	key     logKey
	match   func(string) bool
	MatchCh chan struct{}
}

func (s *LogSubscription) fire() {
	select {
	case s.MatchCh <- struct{}{}:
	default:
	}
}

// LogManager keeps the output of every container and wakes up waiters
// whose pattern shows up, including in output seen before they subscribed.
type LogManager struct {
	mu          sync.Mutex
	subscribers []*LogSubscription
	history     map[logKey]*strings.Builder
}

func NewLogManager() *LogManager {
	return &LogManager{
		history: make(map[logKey]*strings.Builder),
	}
}

func (m *LogManager) Accept(node string, source LogSource, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := logKey{node, source}
	b, ok := m.history[key]
	if !ok {
		b = &strings.Builder{}
		m.history[key] = b
	}
	b.WriteString(content)
	full := b.String()

	for _, sub := range m.subscribers {
		if sub.key == key && (sub.match(content) || sub.match(full)) {
			sub.fire()
		}
	}
}

func (m *LogManager) Subscribe(node string, source LogSource, pattern string, isRegex bool) (*LogSubscription, error) {
	match := func(s string) bool { return strings.Contains(s, pattern) }
	if isRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		match = re.MatchString
	}
	sub := &LogSubscription{
		key:     logKey{node, source},
		match:   match,
		MatchCh: make(chan struct{}, 1),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
	if b, ok := m.history[sub.key]; ok && match(b.String()) {
		sub.fire()
	}
	return sub, nil
}

func (m *LogManager) Unsubscribe(sub *LogSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = lo.Without(m.subscribers, sub)
}

// Forget drops the history of a node.
func (m *LogManager) Forget(node string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.history {
		if key.node == node {
			delete(m.history, key)
		}
	}
}

type UnifiedLogConsumer struct {
	Node    string
	Manager *LogManager
}

func (c *UnifiedLogConsumer) Accept(l testcontainers.Log) {
	source := SourceStdout
	if l.LogType == "STDERR" || l.LogType == "stderr" {
		source = SourceStderr
	}
	content := StripAnsi(string(l.Content))
	fmt.Printf("[%s:%s] %s", c.Node, source, content)
	c.Manager.Accept(c.Node, source, content)
}
