// Package news turns raw ingested payloads into deliverable content.
package news

import (
	"regexp"
	"strings"
)

// Content is a classified news item: display text plus ordered image URLs.
// It is transient; produced once per ingested item and consumed once by
// the fanout dispatcher.
type Content struct {
	Text   string
	Images []string
}

var (
	// Bare URLs ending in a recognized image extension, anywhere in the text.
	imageURLRe = regexp.MustCompile(`(?i)https?://\S+\.(?:jpe?g|png|gif)`)

	// Marker line opening a labeled image block ("Фото:" in the original feed,
	// "Images:" accepted for the HTTP ingest path).
	blockMarkerRe = regexp.MustCompile(`(?i)^\s*(?:фото|изображения|images?)\s*:\s*$`)

	urlLineRe = regexp.MustCompile(`(?i)^\s*https?://\S+\s*$`)

	newlineRunRe = regexp.MustCompile(`\n{3,}`)
)

// Classify splits raw into clean display text and an ordered image list.
//
// The bare-URL scan runs first and is authoritative; a labeled image block
// is then removed from the text and its URLs appended. Bare URLs embedded
// in prose stay in the text even though they are also extracted. Any input
// classifies successfully.
func Classify(raw string) Content {
	var images []string
	seen := map[string]bool{}

	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		images = append(images, u)
	}

	for _, u := range imageURLRe.FindAllString(raw, -1) {
		add(u)
	}

	text, blockURLs := stripImageBlock(raw)
	for _, u := range blockURLs {
		add(u)
	}

	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	return Content{Text: text, Images: images}
}

// stripImageBlock removes a labeled image block (marker line followed by one
// URL per line) and returns the remaining text plus the block's URLs.
func stripImageBlock(raw string) (string, []string) {
	lines := strings.Split(raw, "\n")
	var (
		kept []string
		urls []string
	)
	for i := 0; i < len(lines); i++ {
		if !blockMarkerRe.MatchString(lines[i]) {
			kept = append(kept, lines[i])
			continue
		}
		// Consume consecutive URL lines after the marker.
		j := i + 1
		for j < len(lines) && urlLineRe.MatchString(lines[j]) {
			urls = append(urls, strings.TrimSpace(lines[j]))
			j++
		}
		if j == i+1 {
			// Marker with no URLs underneath is ordinary text.
			kept = append(kept, lines[i])
			continue
		}
		i = j - 1
	}
	return strings.Join(kept, "\n"), urls
}
