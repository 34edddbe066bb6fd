package botui

import (
	"strings"
	"testing"

	"vestbot/internal/category"
)

func TestCommandToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/start", "start"},
		{"/subscribe@NerekhtaNewsBot", "subscribe"},
		{"/Subscribe extra args", "subscribe"},
		{"  /about  ", "about"},
		{"hello", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := commandToken(tc.in); got != tc.want {
			t.Fatalf("commandToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKeyboardText(t *testing.T) {
	cat := category.Default()

	if got := keyboardText(nil, cat); !strings.Contains(got, "Выберите категории") {
		t.Fatalf("empty-set text = %q", got)
	}

	got := keyboardText([]string{"power", "water"}, cat)
	if !strings.Contains(got, cat.Label("power")) || !strings.Contains(got, cat.Label("water")) {
		t.Fatalf("labels missing: %q", got)
	}

	full := append(cat.Concrete(), category.All)
	if got := keyboardText(full, cat); !strings.Contains(got, "все новости") {
		t.Fatalf("all-set text = %q", got)
	}
}

func TestKeyboardMarksActive(t *testing.T) {
	r := &Router{catalog: category.Default()}
	kb := r.keyboard([]string{"power"})

	rows := kb.Rows()
	if len(rows) != category.Default().Len()+1 {
		t.Fatalf("rows = %d", len(rows))
	}
	found := false
	for _, row := range rows {
		for _, btn := range row {
			if strings.HasPrefix(btn.Text, "✅ ") && strings.Contains(btn.Data, "power") {
				found = true
			}
			if strings.HasPrefix(btn.Text, "✅ ") && !strings.Contains(btn.Data, "power") {
				t.Fatalf("inactive category marked active: %+v", btn)
			}
		}
	}
	if !found {
		t.Fatal("active category not marked")
	}
}
