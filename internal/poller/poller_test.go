package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"vestbot/internal/fanout"
	"vestbot/internal/news"
	"vestbot/internal/store"
	logx "vestbot/pkg/logx"
)

type captureDeliverer struct {
	mu    sync.Mutex
	calls []string
}

func (c *captureDeliverer) Deliver(_ context.Context, content news.Content, cat string) (fanout.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, cat+"|"+content.Text)
	return fanout.Report{Attempted: 1, Succeeded: 1}, nil
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPollRelaysNewItems(t *testing.T) {
	srv := feedServer(t, `[
		{"content":"Отключение света","category":"power"},
		{"content":"Прорыв трубы","category":"water"}
	]`)

	d := &captureDeliverer{}
	p, err := New(Config{FeedURL: srv.URL, DedupWindow: time.Hour}, d, store.NewMemory(), logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	p.poll(context.Background())
	if len(d.calls) != 2 {
		t.Fatalf("calls = %v", d.calls)
	}

	// A second poll of the same feed must be a no-op.
	p.poll(context.Background())
	if len(d.calls) != 2 {
		t.Fatalf("dedup failed, calls = %v", d.calls)
	}
}

func TestPollSkipsEmptyContent(t *testing.T) {
	srv := feedServer(t, `[{"content":"","category":"power"}]`)

	d := &captureDeliverer{}
	p, err := New(Config{FeedURL: srv.URL}, d, store.NewMemory(), logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.poll(context.Background())
	if len(d.calls) != 0 {
		t.Fatalf("calls = %v", d.calls)
	}
}

func TestPollBadFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := &captureDeliverer{}
	p, err := New(Config{FeedURL: srv.URL}, d, store.NewMemory(), logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p.poll(context.Background())
	if len(d.calls) != 0 {
		t.Fatalf("calls = %v", d.calls)
	}
}

func TestNewRequiresFeedURL(t *testing.T) {
	if _, err := New(Config{}, &captureDeliverer{}, store.NewMemory(), logx.Nop()); err == nil {
		t.Fatal("expected error without feed url")
	}
}

func TestItemKeyDistinguishesCategory(t *testing.T) {
	a := itemKey(feedItem{Content: "x", Category: "power"})
	b := itemKey(feedItem{Content: "x", Category: "water"})
	if a == b {
		t.Fatal("keys collide across categories")
	}
	if a != itemKey(feedItem{Content: "x", Category: "power"}) {
		t.Fatal("key not stable")
	}
}
