package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"vestbot/internal/category"
	"vestbot/internal/fanout"
	"vestbot/internal/news"
	logx "vestbot/pkg/logx"
)

type fakeDeliverer struct {
	lastContent news.Content
	lastCat     string
	err         error
}

func (f *fakeDeliverer) Deliver(_ context.Context, content news.Content, cat string) (fanout.Report, error) {
	f.lastContent = content
	f.lastCat = cat
	if f.err != nil {
		return fanout.Report{}, f.err
	}
	return fanout.Report{ID: "r1", Category: cat, Attempted: 2, Succeeded: 2}, nil
}

func newTestServer(d Deliverer, adminToken string) *Server {
	return New(Config{Addr: ":0", AdminToken: adminToken}, d, category.Default(), logx.Nop())
}

func doJSON(t *testing.T, s *Server, method, path, body string, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return resp, out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeDeliverer{}, "")
	resp, body := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
}

func TestNewsEndpoint(t *testing.T) {
	d := &fakeDeliverer{}
	s := newTestServer(d, "")

	resp, body := doJSON(t, s, http.MethodPost, "/telegram/news",
		`{"content":"Авария на сетях.\nФото:\nhttps://e.org/a.jpg","category":"power"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
	if body["report_id"] != "r1" || body["attempted"] != float64(2) {
		t.Fatalf("body = %v", body)
	}
	if d.lastCat != "power" {
		t.Fatalf("category = %q", d.lastCat)
	}
	if len(d.lastContent.Images) != 1 || d.lastContent.Text != "Авария на сетях." {
		t.Fatalf("classified content = %+v", d.lastContent)
	}
}

func TestNewsValidation(t *testing.T) {
	s := newTestServer(&fakeDeliverer{}, "")

	cases := []struct {
		name string
		body string
	}{
		{"empty_content", `{"content":"","category":"power"}`},
		{"unknown_category", `{"content":"x","category":"sports"}`},
		{"bad_json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := doJSON(t, s, http.MethodPost, "/telegram/news", tc.body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d", resp.StatusCode)
			}
		})
	}
}

func TestNewsDeliveryError(t *testing.T) {
	s := newTestServer(&fakeDeliverer{err: errors.New("store down")}, "")
	resp, _ := doJSON(t, s, http.MethodPost, "/telegram/news", `{"content":"x","category":"power"}`, nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAdminAuth(t *testing.T) {
	d := &fakeDeliverer{}
	s := newTestServer(d, "secret")

	resp, _ := doJSON(t, s, http.MethodPost, "/admin/send-message", `{"message":"x"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, s, http.MethodPost, "/admin/send-message", `{"message":"x"}`,
		map[string]string{"Authorization": "Bearer wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, s, http.MethodPost, "/admin/send-message",
		`{"message":"Важное объявление","imageUrls":["https://e.org/a.jpg"]}`,
		map[string]string{"Authorization": "Bearer secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("good token: status = %d", resp.StatusCode)
	}
	if len(d.lastContent.Images) != 1 || d.lastContent.Images[0] != "https://e.org/a.jpg" {
		t.Fatalf("images = %v", d.lastContent.Images)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	s := newTestServer(&fakeDeliverer{}, "")
	resp, _ := doJSON(t, s, http.MethodPost, "/admin/send-message", `{"message":"x"}`,
		map[string]string{"Authorization": "Bearer anything"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMergeImages(t *testing.T) {
	got := mergeImages([]string{"a", "b", " "}, []string{"b", "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
