package tgui

import "testing"

func TestDataRoundTrip(t *testing.T) {
	scope, action, payload := ParseData(Data("sub", "toggle", "power"))
	if scope != "sub" || action != "toggle" || payload != "power" {
		t.Fatalf("got %q %q %q", scope, action, payload)
	}
}

func TestParseDataPayloadWithColons(t *testing.T) {
	_, _, payload := ParseData("sub:toggle:a:b:c")
	if payload != "a:b:c" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestParseDataShortForms(t *testing.T) {
	scope, action, payload := ParseData("sub:toggle")
	if scope != "sub" || action != "toggle" || payload != "" {
		t.Fatalf("got %q %q %q", scope, action, payload)
	}
	scope, action, payload = ParseData("garbage")
	if scope != "garbage" || action != "" || payload != "" {
		t.Fatalf("got %q %q %q", scope, action, payload)
	}
}

func TestDataEmptyPayload(t *testing.T) {
	if got := Data("sub", "toggle", ""); got != "sub:toggle" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hell…"},
		{"привет", 3, "при…"},
		{"", 5, ""},
		{"abc", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
