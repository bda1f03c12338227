package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
	"github.com/cyrup-ai/action-items-sub005/internal/capability"
	"github.com/cyrup-ai/action-items-sub005/internal/event"
)

type lister []string

func (l lister) Searchers() []string { return l }

type capSet map[string]map[capability.Capability]bool

func (c capSet) Has(pluginID string, cap capability.Capability) bool {
	return c[pluginID][cap]
}

// pluginResponses wires a bridge whose search handler answers per
// plugin id. Blocking plugins wait on the returned release channel.
func searchBridge(t *testing.T, handlers map[string]func() (json.RawMessage, error)) *bridge.Bridge {
	t.Helper()
	b := bridge.New(capSet{})
	b.RegisterHandler(bridge.KindSearch, func(ctx context.Context, req bridge.ServiceRequest) (json.RawMessage, error) {
		h, ok := handlers[req.PluginID]
		if !ok {
			return nil, errors.New("unknown plugin")
		}
		return h()
	})
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	return b
}

func items(scores ...float64) func() (json.RawMessage, error) {
	return func() (json.RawMessage, error) {
		type entry struct {
			Title       string  `json:"title"`
			Description string  `json:"description"`
			Score       float64 `json:"score"`
			Action      string  `json:"action"`
		}
		entries := make([]entry, len(scores))
		for i, s := range scores {
			entries[i] = entry{Title: "item", Description: "d", Score: s, Action: "open"}
		}
		payload, _ := json.Marshal(map[string]any{"items": entries})
		return payload, nil
	}
}

func TestSearchAggregatesAndRanks(t *testing.T) {
	b := searchBridge(t, map[string]func() (json.RawMessage, error){
		"calc":  items(0.2, 0.9),
		"notes": items(0.5),
	})
	defer func() { _ = b.Stop(context.Background()) }()

	o := New(lister{"calc", "notes"}, b, nil)
	res, err := o.Search(context.Background(), "tea")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if res.Partial() {
		t.Errorf("Partial() = true, failed = %v", res.Failed)
	}
	if len(res.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(res.Items))
	}
	want := []float64{0.9, 0.5, 0.2}
	for i, item := range res.Items {
		if item.Score != want[i] {
			t.Errorf("Items[%d].Score = %v, want %v", i, item.Score, want[i])
		}
	}
	if res.Items[0].PluginID != "calc" || res.Items[1].PluginID != "notes" {
		t.Errorf("plugin attribution = %s/%s", res.Items[0].PluginID, res.Items[1].PluginID)
	}
}

func TestSearchQueryReachesPlugins(t *testing.T) {
	got := make(chan json.RawMessage, 1)

	b := bridge.New(capSet{})
	b.RegisterHandler(bridge.KindSearch, func(ctx context.Context, req bridge.ServiceRequest) (json.RawMessage, error) {
		got <- req.Payload
		return json.RawMessage(`{"items": []}`), nil
	})
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = b.Stop(context.Background()) }()

	o := New(lister{"calc"}, b, nil)
	if _, err := o.Search(context.Background(), "convert 5km"); err != nil {
		t.Fatal(err)
	}

	payload := <-got
	if q := gjson.GetBytes(payload, "query").String(); q != "convert 5km" {
		t.Errorf("query = %q", q)
	}
	if gjson.GetBytes(payload, "search_id").String() == "" {
		t.Error("payload carries no search_id")
	}
	if n := gjson.GetBytes(payload, "max_results").Int(); n <= 0 {
		t.Errorf("max_results = %d, want positive", n)
	}
	if ms := gjson.GetBytes(payload, "timeout_ms").Int(); ms <= 0 {
		t.Errorf("timeout_ms = %d, want positive", ms)
	}
}

func TestSearchCapsResultList(t *testing.T) {
	b := searchBridge(t, map[string]func() (json.RawMessage, error){
		"calc": items(0.1, 0.9, 0.5, 0.7),
	})
	defer func() { _ = b.Stop(context.Background()) }()

	o := New(lister{"calc"}, b, nil, WithMaxResults(2))
	res, err := o.Search(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2", len(res.Items))
	}
	if res.Items[0].Score != 0.9 || res.Items[1].Score != 0.7 {
		t.Errorf("kept scores = %v/%v, want the top ranked", res.Items[0].Score, res.Items[1].Score)
	}
}

func TestSearchPartialFailure(t *testing.T) {
	release := make(chan struct{})

	b := searchBridge(t, map[string]func() (json.RawMessage, error){
		"calc":   items(0.7),
		"broken": func() (json.RawMessage, error) { return nil, errors.New("index corrupted") },
		"slow": func() (json.RawMessage, error) {
			<-release
			return json.RawMessage(`{"items": []}`), nil
		},
	})
	defer func() { _ = b.Stop(context.Background()) }()
	defer close(release)

	o := New(lister{"calc", "broken", "slow"}, b, nil, WithTimeout(200*time.Millisecond))
	res, err := o.Search(context.Background(), "calc")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if !res.Partial() {
		t.Fatal("Partial() = false")
	}
	if len(res.Items) != 1 || res.Items[0].PluginID != "calc" {
		t.Errorf("Items = %+v, want calc's one item", res.Items)
	}
	if got := res.Failed["broken"]; got != "index corrupted" {
		t.Errorf(`Failed["broken"] = %q, want the plugin's own error`, got)
	}
	if got := res.Failed["slow"]; got != reasonDeadline {
		t.Errorf(`Failed["slow"] = %q, want %q`, got, reasonDeadline)
	}
}

func TestSearchNoPlugins(t *testing.T) {
	b := searchBridge(t, nil)
	defer func() { _ = b.Stop(context.Background()) }()

	o := New(lister{}, b, nil)
	start := time.Now()
	res, err := o.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Items) != 0 || res.Partial() {
		t.Errorf("result = %+v, want empty success", res)
	}
	if time.Since(start) > time.Second {
		t.Error("empty search waited instead of returning immediately")
	}
}

func TestSearchPublishesEvents(t *testing.T) {
	b := searchBridge(t, map[string]func() (json.RawMessage, error){
		"calc": items(1.0),
	})
	defer func() { _ = b.Stop(context.Background()) }()

	events := event.NewBus()
	var requested event.SearchRequested
	var completed event.SearchCompleted
	_, _ = events.Subscribe(event.TopicSearchRequested, func(ctx context.Context, e any) error {
		requested = e.(event.SearchRequested)
		return nil
	})
	_, _ = events.Subscribe(event.TopicSearchCompleted, func(ctx context.Context, e any) error {
		completed = e.(event.SearchCompleted)
		return nil
	})

	o := New(lister{"calc"}, b, events)
	res, err := o.Search(context.Background(), "tea")
	if err != nil {
		t.Fatal(err)
	}

	if requested.SearchID != res.SearchID || len(requested.Expected) != 1 {
		t.Errorf("SearchRequested = %+v", requested)
	}
	if completed.SearchID != res.SearchID || completed.Results != 1 {
		t.Errorf("SearchCompleted = %+v", completed)
	}
}

func TestPluginUnregisteredPrunesActiveSearch(t *testing.T) {
	release := make(chan struct{})

	b := searchBridge(t, map[string]func() (json.RawMessage, error){
		"calc": items(0.4),
		"gone": func() (json.RawMessage, error) {
			<-release
			return json.RawMessage(`{"items": []}`), nil
		},
	})
	defer func() { _ = b.Stop(context.Background()) }()
	defer close(release)

	o := New(lister{"calc", "gone"}, b, nil, WithTimeout(5*time.Second))

	results := make(chan *Result, 1)
	go func() {
		res, _ := o.Search(context.Background(), "q")
		results <- res
	}()

	waitFor(t, func() bool { return o.ActiveSearches() == 1 })
	o.PluginUnregistered("gone")

	select {
	case res := <-results:
		if got := res.Failed["gone"]; got != reasonUnregistered {
			t.Errorf(`Failed["gone"] = %q, want %q`, got, reasonUnregistered)
		}
		if len(res.Items) != 1 {
			t.Errorf("len(Items) = %d, want calc's item", len(res.Items))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("search still waiting on an unregistered plugin")
	}
}

func TestSearchContextAlreadyCancelled(t *testing.T) {
	b := searchBridge(t, nil)
	defer func() { _ = b.Stop(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(lister{}, b, nil)
	if _, err := o.Search(ctx, "q"); !errors.Is(err, context.Canceled) {
		t.Errorf("Search() error = %v, want context.Canceled", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition never became true")
		case <-time.After(time.Millisecond):
		}
	}
}
