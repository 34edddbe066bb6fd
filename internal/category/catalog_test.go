package category

import "testing"

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	for _, k := range []string{"power", "water", "roads", "city"} {
		if !c.Has(k) {
			t.Fatalf("default catalog missing %q", k)
		}
	}
	if !c.Has(All) {
		t.Fatalf("catalog must always accept %q", All)
	}
	if c.Has("weather") {
		t.Fatal("unexpected key accepted")
	}
	if len(c.Concrete()) != c.Len() {
		t.Fatalf("Concrete()=%d Len()=%d", len(c.Concrete()), c.Len())
	}
}

func TestNewRejectsBadEntries(t *testing.T) {
	cases := []struct {
		name    string
		entries []Entry
	}{
		{"empty", nil},
		{"blank_key", []Entry{{Key: "", Label: "x"}}},
		{"reserved", []Entry{{Key: All, Label: "x"}}},
		{"duplicate", []Entry{{Key: "a", Label: "x"}, {Key: "a", Label: "y"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.entries); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLabelFallsBackToKey(t *testing.T) {
	c, err := New([]Entry{{Key: "power", Label: "⚡ Свет"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.Label("power"); got != "⚡ Свет" {
		t.Fatalf("label = %q", got)
	}
	if got := c.Label("unknown"); got != "unknown" {
		t.Fatalf("fallback label = %q", got)
	}
}
