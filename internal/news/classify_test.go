package news

import (
	"reflect"
	"strings"
	"testing"
)

func TestClassifyPlainText(t *testing.T) {
	got := Classify("Отключение воды на ул. Ленина с 10:00 до 14:00.")
	if got.Text != "Отключение воды на ул. Ленина с 10:00 до 14:00." {
		t.Fatalf("text changed: %q", got.Text)
	}
	if len(got.Images) != 0 {
		t.Fatalf("expected no images, got %v", got.Images)
	}
}

func TestClassifyLabeledBlock(t *testing.T) {
	raw := "Ремонт дороги завершен.\n\nФото:\nhttps://example.org/a.jpg\nhttps://example.org/b.png"
	got := Classify(raw)

	if got.Text != "Ремонт дороги завершен." {
		t.Fatalf("block not stripped: %q", got.Text)
	}
	want := []string{"https://example.org/a.jpg", "https://example.org/b.png"}
	if !reflect.DeepEqual(got.Images, want) {
		t.Fatalf("images = %v, want %v", got.Images, want)
	}
}

func TestClassifyEnglishMarker(t *testing.T) {
	raw := "Road closed.\nImages:\nhttps://example.org/road.png"
	got := Classify(raw)
	if got.Text != "Road closed." {
		t.Fatalf("text = %q", got.Text)
	}
	if len(got.Images) != 1 || got.Images[0] != "https://example.org/road.png" {
		t.Fatalf("images = %v", got.Images)
	}
}

func TestClassifyBareURLStaysInText(t *testing.T) {
	raw := "Смотрите схему https://example.org/map.jpg на сайте."
	got := Classify(raw)

	if !strings.Contains(got.Text, "https://example.org/map.jpg") {
		t.Fatalf("inline url removed from text: %q", got.Text)
	}
	if len(got.Images) != 1 || got.Images[0] != "https://example.org/map.jpg" {
		t.Fatalf("images = %v", got.Images)
	}
}

func TestClassifyScanAndBlockAgree(t *testing.T) {
	// The same URL found by both strategies is reported once, and the bare
	// scan decides the order.
	raw := "Новость с картинкой https://example.org/x.jpg\nФото:\nhttps://example.org/x.jpg\nhttps://example.org/y.gif"
	got := Classify(raw)

	want := []string{"https://example.org/x.jpg", "https://example.org/y.gif"}
	if !reflect.DeepEqual(got.Images, want) {
		t.Fatalf("images = %v, want %v", got.Images, want)
	}
}

func TestClassifyMarkerWithoutURLsKept(t *testing.T) {
	raw := "Фото:\nбудут опубликованы позже."
	got := Classify(raw)
	if !strings.Contains(got.Text, "Фото:") {
		t.Fatalf("bare marker line dropped: %q", got.Text)
	}
	if len(got.Images) != 0 {
		t.Fatalf("images = %v", got.Images)
	}
}

func TestClassifyCollapsesNewlineRuns(t *testing.T) {
	got := Classify("Первый абзац.\n\n\n\n\nВторой абзац.")
	if got.Text != "Первый абзац.\n\nВторой абзац." {
		t.Fatalf("text = %q", got.Text)
	}
}

func TestClassifyEmpty(t *testing.T) {
	got := Classify("   \n\n  ")
	if got.Text != "" || len(got.Images) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestClassifyNonImageURLIgnored(t *testing.T) {
	got := Classify("Подробнее: https://example.org/news/123")
	if len(got.Images) != 0 {
		t.Fatalf("non-image url classified as image: %v", got.Images)
	}
}
