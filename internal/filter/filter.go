// Package filter holds the message-type drill-down: which type is selected
// and the cached messages fetched for it.
package filter

import (
	"context"
	"slices"
	"sort"
	"sync"

	"msgdash/internal/domain"

	"github.com/sirupsen/logrus"
)

// Loader fetches the messages of one type.
type Loader func(ctx context.Context, messageType string) ([]domain.TypedMessage, error)

// View is a copy of the cache's state.
type View struct {
	Selected string                `json:"selected_message_type"`
	Messages []domain.TypedMessage `json:"messages"`
	Headers  []string              `json:"headers"`
	Loading  bool                  `json:"loading"`
}

// Cache tracks the selected message type. Only the response for the type
// that is selected when it arrives is kept.
type Cache struct {
	load Loader
	log  *logrus.Entry

	mu       sync.Mutex
	selected string
	messages []domain.TypedMessage
	loading  bool
	seq      uint64
}

// New creates an empty cache.
func New(load Loader) *Cache {
	return &Cache{
		load: load,
		log:  logrus.WithField("component", "filter"),
	}
}

// Select changes the selected type. A new non-empty type triggers exactly one
// fetch; an empty type clears the selection without touching the network.
// Selecting the type that is already selected does nothing.
//
// The returned error is nil when the response was discarded because the
// selection moved on while it was in flight.
func (c *Cache) Select(ctx context.Context, messageType string) error {
	c.mu.Lock()
	if messageType == c.selected {
		c.mu.Unlock()
		return nil
	}
	c.selected = messageType
	c.messages = nil
	c.seq++
	seq := c.seq
	if messageType == "" {
		c.loading = false
		c.mu.Unlock()
		return nil
	}
	c.loading = true
	c.mu.Unlock()

	return c.fetch(ctx, messageType, seq)
}

// Reload refetches the selected type. It is a no-op when nothing is
// selected. Existing messages stay visible until the response arrives.
func (c *Cache) Reload(ctx context.Context) error {
	c.mu.Lock()
	if c.selected == "" {
		c.mu.Unlock()
		return nil
	}
	c.seq++
	seq := c.seq
	messageType := c.selected
	c.loading = true
	c.mu.Unlock()

	return c.fetch(ctx, messageType, seq)
}

func (c *Cache) fetch(ctx context.Context, messageType string, seq uint64) error {
	msgs, err := c.load(ctx, messageType)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		c.log.WithField("message_type", messageType).Debug("Discarding stale message list")
		return nil
	}
	c.loading = false
	if err != nil {
		return err
	}
	c.messages = msgs
	c.log.WithFields(logrus.Fields{
		"message_type": messageType,
		"count":        len(msgs),
	}).Debug("Message list loaded")
	return nil
}

// Selected returns the selected type, empty when none.
func (c *Cache) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// View returns a consistent copy of the cache with its table headers.
func (c *Cache) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := slices.Clone(c.messages)
	return View{
		Selected: c.selected,
		Messages: msgs,
		Headers:  TableHeaders(msgs),
		Loading:  c.loading,
	}
}

// TableHeaders lists the detail field names across msgs, each once, in
// first-seen order. Keys within one message are taken in sorted order so the
// result does not depend on map iteration.
func TableHeaders(msgs []domain.TypedMessage) []string {
	seen := make(map[string]struct{})
	headers := []string{}
	for _, m := range msgs {
		keys := make([]string, 0, len(m.Details))
		for k := range m.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			headers = append(headers, k)
		}
	}
	return headers
}
