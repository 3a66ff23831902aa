// Package llm holds chat sessions with a completion model. A Session owns
// its conversations and token counters; nothing here is process-global.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"pddlsynth/internal/logging"
	"pddlsynth/internal/metrics"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultMaxCalls bounds completion calls per session.
const DefaultMaxCalls = 400

var (
	// ErrCallLimit is returned once a session has used its call budget.
	ErrCallLimit = errors.New("completion call limit reached")
	// ErrUnknownConversation is returned for ids the session never issued.
	ErrUnknownConversation = errors.New("unknown conversation")
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request asks for N completions of a chat.
type Request struct {
	Messages    []Message
	N           int
	Temperature float32
	MaxTokens   int
}

// Usage counts tokens.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response holds one content string per requested completion.
type Response struct {
	Contents []string
	Usage    Usage
	// LogProbMeans is the mean token log probability per completion, when
	// the backend reports it.
	LogProbMeans []float64
}

// Completer produces chat completions.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// SessionOptions configure a Session.
type SessionOptions struct {
	Model     string
	MaxCalls  int
	MaxTokens int
}

// Session tracks conversations and usage for one run.
type Session struct {
	completer Completer
	opts      SessionOptions

	mu    sync.Mutex
	convs map[string][]Message
	usage Usage
	calls int
}

// NewSession creates a session. A zero MaxCalls uses DefaultMaxCalls.
func NewSession(c Completer, opts SessionOptions) *Session {
	if opts.MaxCalls <= 0 {
		opts.MaxCalls = DefaultMaxCalls
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}
	return &Session{completer: c, opts: opts, convs: make(map[string][]Message)}
}

// NewChat starts a conversation with a system message and returns its id.
func (s *Session) NewChat(system string) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.convs[id] = []Message{{Role: RoleSystem, Content: system}}
	s.mu.Unlock()
	return id
}

// Messages returns a copy of a conversation.
func (s *Session) Messages(id string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.convs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConversation, id)
	}
	return append([]Message(nil), chat...), nil
}

// CompleteOne appends input to conversation id and asks for one reply. The
// reply lands in a new conversation whose id is returned.
func (s *Session) CompleteOne(ctx context.Context, id, input string, temperature float32) (string, string, error) {
	ids, outputs, err := s.CompleteN(ctx, id, input, 1, temperature)
	if err != nil {
		return "", "", err
	}
	return ids[0], outputs[0], nil
}

// CompleteN appends input to conversation id and asks for n replies. Each
// reply continues its own copy of the conversation; the returned ids name
// those copies in order.
func (s *Session) CompleteN(ctx context.Context, id, input string, n int, temperature float32) ([]string, []string, error) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	if s.calls >= s.opts.MaxCalls {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("%w (%d)", ErrCallLimit, s.opts.MaxCalls)
	}
	chat, ok := s.convs[id]
	if !ok {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownConversation, id)
	}
	chat = append(chat, Message{Role: RoleUser, Content: input})
	s.convs[id] = chat
	sent := append([]Message(nil), chat...)
	s.calls++
	s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryLLM, "complete")
	resp, err := s.completer.Complete(ctx, Request{
		Messages:    sent,
		N:           n,
		Temperature: temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	timer.Stop()
	if err != nil {
		return nil, nil, err
	}
	if len(resp.Contents) < n {
		return nil, nil, fmt.Errorf("asked for %d completions, got %d", n, len(resp.Contents))
	}
	metrics.CompletionTokens.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.CompletionTokens.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.PromptTokens += resp.Usage.PromptTokens
	s.usage.CompletionTokens += resp.Usage.CompletionTokens
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = uuid.NewString()
		branch := append([]Message(nil), sent...)
		s.convs[ids[i]] = append(branch, Message{Role: RoleAssistant, Content: resp.Contents[i]})
	}
	logging.LLMDebug("completed %d replies (%d prompt, %d completion tokens)",
		n, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return ids, resp.Contents[:n], nil
}

// Usage returns the tokens used so far.
func (s *Session) Usage() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Calls returns the number of completion calls made.
func (s *Session) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// pricePerMillion is the prompt price in dollars; completion tokens cost
// three times as much.
var pricePerMillion = map[string]float64{
	"gpt-3.5-turbo-1106":     1.0,
	"gpt-3.5-turbo-0125":     0.5,
	"gpt-4-1106-preview":     10,
	"gpt-4-0125-preview":     10,
	"gpt-4-turbo-2024-04-09": 10,
	"gpt-4o":                 2.5,
	"gpt-4o-mini":            0.15,
}

// Cost estimates the dollars spent. It reports false for unpriced models.
func (s *Session) Cost() (float64, bool) {
	price, ok := pricePerMillion[s.opts.Model]
	if !ok {
		return 0, false
	}
	u := s.Usage()
	return price * float64(u.PromptTokens+3*u.CompletionTokens) / 1e6, true
}

// String summarizes usage.
func (s *Session) String() string {
	u := s.Usage()
	if cost, ok := s.Cost(); ok {
		return fmt.Sprintf("%d prompt tokens, %d completion tokens, costing $%.3f", u.PromptTokens, u.CompletionTokens, cost)
	}
	return fmt.Sprintf("%d prompt tokens, %d completion tokens", u.PromptTokens, u.CompletionTokens)
}

// Save writes every conversation to dir as chat_<id>.json.
func (s *Session) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chat dir: %w", err)
	}
	s.mu.Lock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	chats := make(map[string][]Message, len(ids))
	for _, id := range ids {
		chats[id] = append([]Message(nil), s.convs[id]...)
	}
	s.mu.Unlock()

	for _, id := range ids {
		data, err := json.MarshalIndent(chats[id], "", "  ")
		if err != nil {
			return err
		}
		path := filepath.Join(dir, "chat_"+id+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	logging.LLM("saved %d conversations to %s", len(ids), dir)
	return nil
}
