package fetch

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlTitle returns the <title> of an html body, most often a proxy or challenge
// page served in place of the json api. Empty when `body` is not html.
func htmlTitle(body string) string {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "<") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
