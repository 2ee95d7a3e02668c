package extract

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/pkg/errors"
)

// skippedTags hold no user-visible text.
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// blockTags separate text when they open or close.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true,
	"ul": true, "ol": true, "table": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "section": true, "article": true,
	"header": true, "footer": true,
}

// ExtractHTML strips markup from an HTML document. The <title> element
// becomes the result title and is excluded from the body text.
func ExtractHTML(data []byte) (*Result, error) {
	z := html.NewTokenizer(bytes.NewReader(data))

	var buf strings.Builder
	var title strings.Builder
	skipDepth := 0
	inTitle := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				result := &Result{
					Text:        strings.TrimSpace(buf.String()),
					Title:       strings.TrimSpace(title.String()),
					ContentType: "text/html",
				}
				result.calculateStats()
				return result, nil
			}
			return nil, errors.Wrap(z.Err(), "failed to tokenize html")

		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedTags[tag] {
				skipDepth++
			}
			if tag == "title" {
				inTitle = true
			}
			if blockTags[tag] {
				buf.WriteByte('\n')
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedTags[tag] && skipDepth > 0 {
				skipDepth--
			}
			if tag == "title" {
				inTitle = false
			}
			if blockTags[tag] {
				buf.WriteByte('\n')
			}

		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				buf.WriteByte('\n')
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := z.Text()
			if inTitle {
				title.Write(text)
			} else {
				buf.Write(text)
			}
		}
	}
}
