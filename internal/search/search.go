// Package search fans a query out to every search-capable plugin and
// aggregates ranked results within a bounded window. A slow or broken
// plugin costs its own results, never the whole search: whatever
// arrived by the deadline is returned, with per-plugin failure reasons
// alongside.
package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
	"github.com/cyrup-ai/action-items-sub005/internal/event"
)

// reasonDeadline marks plugins that never answered before the window
// closed, as opposed to plugins that answered with an error.
const reasonDeadline = "no response before deadline"

// reasonUnregistered marks plugins removed while a search awaited them.
const reasonUnregistered = "plugin unregistered"

// Item is one ranked result from one plugin.
type Item struct {
	PluginID    string          `json:"plugin_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Action      string          `json:"action,omitempty"`
	Icon        string          `json:"icon,omitempty"`
	Score       float64         `json:"score"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Result is one completed search.
type Result struct {
	SearchID string
	Query    string
	Items    []Item
	// Failed maps plugin id to failure reason for every expected plugin
	// that contributed nothing.
	Failed  map[string]string
	Elapsed time.Duration
}

// Partial reports whether any expected plugin failed to contribute.
func (r *Result) Partial() bool { return len(r.Failed) > 0 }

// Lister names the plugins a query fans out to. The registry satisfies
// it with the search-capable set.
type Lister interface {
	Searchers() []string
}

// Submitter enqueues service requests onto the bridge.
type Submitter interface {
	Submit(ctx context.Context, req bridge.ServiceRequest) (*bridge.Pending, error)
}

// activeSearch tracks one in-flight query. expected holds the plugins
// still awaited; the done channel closes when it empties.
type activeSearch struct {
	id    string
	query string
	start time.Time

	mu       sync.Mutex
	expected map[string]bool
	failed   map[string]string
	items    []Item
	done     chan struct{}
}

// complete records a plugin's items. No-op if the plugin is no longer
// awaited (already failed, pruned, or past deadline).
func (s *activeSearch) complete(pluginID string, items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.expected[pluginID] {
		return
	}
	delete(s.expected, pluginID)
	s.items = append(s.items, items...)
	s.checkDoneLocked()
}

// fail records a plugin failure reason. Same no-op rule as complete.
func (s *activeSearch) fail(pluginID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.expected[pluginID] {
		return
	}
	delete(s.expected, pluginID)
	s.failed[pluginID] = reason
	s.checkDoneLocked()
}

// expire fails every plugin still awaited.
func (s *activeSearch) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pluginID := range s.expected {
		delete(s.expected, pluginID)
		s.failed[pluginID] = reasonDeadline
	}
	s.checkDoneLocked()
}

func (s *activeSearch) checkDoneLocked() {
	if len(s.expected) == 0 {
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}
}

// Orchestrator runs distributed searches over the bridge.
type Orchestrator struct {
	logger     *slog.Logger
	lister     Lister
	bus        Submitter
	events     *event.Bus
	timeout    time.Duration
	maxResults int

	mu     sync.Mutex
	active map[string]*activeSearch
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTimeout bounds how long a search waits for plugin responses.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxResults caps the published result list.
func WithMaxResults(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxResults = n
		}
	}
}

// New creates an orchestrator. events may be nil when no one listens.
func New(lister Lister, bus Submitter, events *event.Bus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:     slog.Default(),
		lister:     lister,
		bus:        bus,
		events:     events,
		timeout:    5 * time.Second,
		maxResults: 50,
		active:     make(map[string]*activeSearch),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search fans the query out and blocks until every expected plugin
// answered, failed, or the window closed. The returned Result is never
// nil on a nil error; zero search-capable plugins yield an immediate
// empty result.
func (o *Orchestrator) Search(ctx context.Context, query string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &activeSearch{
		id:       uuid.NewString(),
		query:    query,
		start:    time.Now(),
		expected: make(map[string]bool),
		failed:   make(map[string]string),
		done:     make(chan struct{}),
	}

	expected := o.lister.Searchers()
	for _, pluginID := range expected {
		s.expected[pluginID] = true
	}

	o.mu.Lock()
	o.active[s.id] = s
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, s.id)
		o.mu.Unlock()
	}()

	o.publish(ctx, event.SearchRequested{SearchID: s.id, Query: query, Expected: expected})

	if len(expected) == 0 {
		return o.finish(ctx, s), nil
	}

	payload, _ := sjson.Set(`{}`, "query", query)
	payload, _ = sjson.Set(payload, "search_id", s.id)
	payload, _ = sjson.Set(payload, "max_results", o.maxResults)
	payload, _ = sjson.Set(payload, "timeout_ms", o.timeout.Milliseconds())

	deadline, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	for _, pluginID := range expected {
		pending, err := o.bus.Submit(deadline, bridge.ServiceRequest{
			Kind:     bridge.KindSearch,
			PluginID: pluginID,
			Payload:  json.RawMessage(payload),
		})
		if err != nil {
			s.fail(pluginID, err.Error())
			continue
		}
		go o.collect(deadline, s, pluginID, pending)
	}

	select {
	case <-s.done:
	case <-deadline.Done():
		s.expire()
	}

	return o.finish(ctx, s), nil
}

// collect awaits one plugin's response and folds it into the search.
func (o *Orchestrator) collect(ctx context.Context, s *activeSearch, pluginID string, pending *bridge.Pending) {
	resp, err := pending.Await(ctx)
	if err != nil {
		// Deadline passed; expire attributes the reason.
		return
	}
	if !resp.Success {
		s.fail(pluginID, resp.Err)
		return
	}
	s.complete(pluginID, parseItems(pluginID, resp.Payload))
}

// finish snapshots, ranks, and announces one search.
func (o *Orchestrator) finish(ctx context.Context, s *activeSearch) *Result {
	s.mu.Lock()
	items := make([]Item, len(s.items))
	copy(items, s.items)
	failed := make(map[string]string, len(s.failed))
	for k, v := range s.failed {
		failed[k] = v
	}
	s.mu.Unlock()

	// Stable sort keeps submission order among equal scores.
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if o.maxResults > 0 && len(items) > o.maxResults {
		items = items[:o.maxResults]
	}

	result := &Result{
		SearchID: s.id,
		Query:    s.query,
		Items:    items,
		Failed:   failed,
		Elapsed:  time.Since(s.start),
	}

	if len(failed) > 0 {
		o.logger.Debug("search completed partially",
			"search_id", s.id, "results", len(items), "failed", len(failed))
	}
	o.publish(ctx, event.SearchCompleted{
		SearchID: s.id,
		Query:    s.query,
		Results:  len(items),
		Failed:   failed,
		Elapsed:  result.Elapsed,
	})
	return result
}

// PluginUnregistered prunes the plugin from every active search so no
// query waits on a plugin that no longer exists. Wired to the registry's
// unregister observers.
func (o *Orchestrator) PluginUnregistered(pluginID string) {
	o.mu.Lock()
	searches := make([]*activeSearch, 0, len(o.active))
	for _, s := range o.active {
		searches = append(searches, s)
	}
	o.mu.Unlock()

	for _, s := range searches {
		s.fail(pluginID, reasonUnregistered)
	}
}

// ActiveSearches returns the number of in-flight searches.
func (o *Orchestrator) ActiveSearches() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Orchestrator) publish(ctx context.Context, e event.TopicProvider) {
	if o.events != nil {
		o.events.Publish(ctx, e)
	}
}

// parseItems extracts ranked items from a plugin's search response.
// Expected shape: {"items": [{"title", "description", "action", "icon",
// "score"}]}. Malformed entries are skipped, not fatal.
func parseItems(pluginID string, payload json.RawMessage) []Item {
	entries := gjson.GetBytes(payload, "items").Array()
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		title := entry.Get("title").String()
		if title == "" {
			continue
		}
		items = append(items, Item{
			PluginID:    pluginID,
			Title:       title,
			Description: entry.Get("description").String(),
			Action:      entry.Get("action").String(),
			Icon:        entry.Get("icon").String(),
			Score:       entry.Get("score").Float(),
			Raw:         json.RawMessage(entry.Raw),
		})
	}
	return items
}
