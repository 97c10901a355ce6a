package memo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NoMemories is returned by Recall when nothing is stored for a speaker.
const NoMemories = "No memories yet!"

const (
	defaultSystemPrompt = "You curate long-term memories about a user of a voice assistant. " +
		"Merge the previous memory with facts from the new messages. " +
		"Keep stable preferences, names and plans. Drop small talk. Reply with the memory text only."
	defaultUserPrompt = "Update the memory for this user."
)

// Message is one chat history entry. Entries without text are ignored.
type Message struct {
	Text string `json:"text"`
}

// Prompts holds the system and user prompt templates.
type Prompts struct {
	System string
	User   string
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() Prompts {
	return Prompts{System: defaultSystemPrompt, User: defaultUserPrompt}
}

// LoadPrompts reads prompts from files. An empty path or an unreadable file
// keeps the built-in prompt for that role and is reported in the error.
func LoadPrompts(systemPath, userPath string) (Prompts, error) {
	p := DefaultPrompts()
	var errs []error
	if systemPath != "" {
		if b, err := os.ReadFile(systemPath); err != nil {
			errs = append(errs, fmt.Errorf("memo: system prompt: %w", err))
		} else {
			p.System = strings.TrimSpace(string(b))
		}
	}
	if userPath != "" {
		if b, err := os.ReadFile(userPath); err != nil {
			errs = append(errs, fmt.Errorf("memo: user prompt: %w", err))
		} else {
			p.User = strings.TrimSpace(string(b))
		}
	}
	return p, errors.Join(errs...)
}

// Curator refreshes memories from chat history.
type Curator struct {
	store      Store
	summarizer Summarizer
	prompts    Prompts
	logger     *slog.Logger
}

// NewCurator creates a Curator. A nil logger uses slog.Default().
func NewCurator(store Store, summarizer Summarizer, prompts Prompts, logger *slog.Logger) *Curator {
	if logger == nil {
		logger = slog.Default()
	}
	if prompts.System == "" {
		prompts.System = defaultSystemPrompt
	}
	if prompts.User == "" {
		prompts.User = defaultUserPrompt
	}
	return &Curator{
		store:      store,
		summarizer: summarizer,
		prompts:    prompts,
		logger:     logger.With("component", "memo"),
	}
}

// Update summarizes history into the speaker's memory. Without a previous
// memory the whole history is summarized, otherwise only the last two
// messages are folded into it.
func (c *Curator) Update(ctx context.Context, userID string, history []Message) error {
	prev, err := c.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	window := history
	if prev.Content != "" && len(window) > 2 {
		window = window[len(window)-2:]
	}
	var texts []string
	for _, m := range window {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	if len(texts) == 0 {
		c.logger.Debug("no text to curate", "user", userID)
		return nil
	}

	previous := prev.Content
	if previous == "" {
		previous = NoMemories
	}
	user := fmt.Sprintf("%s\nPrevious memory: %s. Messages: %q", c.prompts.User, previous, texts)

	summary, err := c.summarizer.Summarize(ctx, c.prompts.System, user)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, userID, strings.TrimSpace(summary)); err != nil {
		return err
	}
	c.logger.Info("memory updated", "user", userID, "messages", len(texts))
	return nil
}

// Recall returns the stored memory text or NoMemories.
func (c *Curator) Recall(ctx context.Context, userID string) (string, error) {
	m, err := c.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) || (err == nil && m.Content == "") {
		return NoMemories, nil
	}
	if err != nil {
		return "", err
	}
	return m.Content, nil
}
