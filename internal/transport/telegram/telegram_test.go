package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "vestbot/pkg/logx"
)

func TestSplitTextShort(t *testing.T) {
	got := splitText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 60) + "\n" + strings.Repeat("b", 60)
	got := splitText(text, 100)
	if len(got) != 2 {
		t.Fatalf("chunks = %d: %q", len(got), got)
	}
	if strings.ContainsRune(got[0], 'b') || strings.ContainsRune(got[1], 'a') {
		t.Fatalf("split mid-line: %q", got)
	}
}

func TestSplitTextHardWrap(t *testing.T) {
	text := strings.Repeat("x", 250)
	got := splitText(text, 100)
	if len(got) != 3 {
		t.Fatalf("chunks = %d", len(got))
	}
	var total int
	for _, c := range got {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk too long: %d", len([]rune(c)))
		}
		total += len([]rune(c))
	}
	if total != 250 {
		t.Fatalf("lost runes: %d", total)
	}
}

func TestSplitTextRuneSafe(t *testing.T) {
	text := strings.Repeat("я", 150)
	got := splitText(text, 100)
	for _, c := range got {
		if strings.ContainsRune(c, '�') {
			t.Fatalf("broken rune in chunk %q", c)
		}
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestSendWithContextCutsOffHungCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := sendWithContext(ctx, func() (*tele.Message, error) {
		<-release
		return nil, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("call not cut off, took %v", elapsed)
	}
}

func TestSendWithContextPassesThrough(t *testing.T) {
	want := &tele.Message{ID: 7}
	got, err := sendWithContext(context.Background(), func() (*tele.Message, error) {
		return want, nil
	})
	if err != nil || got != want {
		t.Fatalf("got %v, %v", got, err)
	}

	sentinel := errors.New("bad request")
	if _, err := sendWithContext(context.Background(), func() (*tele.Message, error) {
		return nil, sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("err = %v", err)
	}
}

func TestSendWithContextExpiredBeforeCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := sendWithContext(ctx, func() (*tele.Message, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Fatal("fn invoked despite expired context")
	}
}

func TestCallbackUpdateGuardsMissingFields(t *testing.T) {
	chat := &tele.Chat{ID: 42}
	sender := &tele.User{ID: 7}
	msg := &tele.Message{ID: 3, Chat: chat}

	if _, ok := callbackUpdate(nil, msg); ok {
		t.Fatal("nil callback accepted")
	}
	if _, ok := callbackUpdate(&tele.Callback{ID: "1"}, msg); ok {
		t.Fatal("callback without sender accepted")
	}
	if _, ok := callbackUpdate(&tele.Callback{ID: "1", Sender: sender}, nil); ok {
		t.Fatal("callback without message accepted")
	}

	up, ok := callbackUpdate(&tele.Callback{ID: "1", Sender: sender, Data: "\fsub:toggle:power"}, msg)
	if !ok {
		t.Fatal("valid callback rejected")
	}
	if up.Callback.ChatID != 42 || up.Callback.FromID != 7 || up.Callback.Data != "sub:toggle:power" {
		t.Fatalf("update = %+v", up.Callback)
	}
}
