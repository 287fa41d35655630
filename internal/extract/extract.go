// Package extract pulls readable article text out of web pages. It is a
// lightweight readability pass: boilerplate elements are skipped, the
// main article container is preferred over the full body, and the result
// carries the metadata needed to store a useful memory.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const (
	maxBodyBytes   = 2 << 20 // 2MB read limit per page
	wordsPerMinute = 200
	excerptRunes   = 300
)

var multiSpacePattern = regexp.MustCompile(`\s+`)

// Article is the readable portion of a web page.
type Article struct {
	Title       string
	Byline      string
	Excerpt     string
	Content     string
	WordCount   int
	ReadingTime int
}

// FromHTML extracts an Article from raw HTML. The parser is forgiving,
// so the only error case is catastrophically malformed input.
func FromHTML(src string) (Article, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return Article{}, fmt.Errorf("parse html: %w", err)
	}

	var art Article
	art.Title = findTitle(doc)
	art.Byline = findByline(doc)

	root := findArticleRoot(doc)
	var sb strings.Builder
	collectText(root, &sb, 0)

	art.Content = strings.TrimSpace(multiSpacePattern.ReplaceAllString(sb.String(), " "))
	art.WordCount = len(strings.Fields(art.Content))
	if art.WordCount > 0 {
		art.ReadingTime = (art.WordCount + wordsPerMinute - 1) / wordsPerMinute
	}
	art.Excerpt = makeExcerpt(art.Content)
	return art, nil
}

// FetchPage downloads a URL and extracts its article. The caller owns
// timeout policy through ctx and the client.
func FetchPage(ctx context.Context, client *http.Client, url string) (Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Article{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return Article{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Article{}, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Article{}, fmt.Errorf("read %s: %w", url, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/plain") {
		text := strings.TrimSpace(string(body))
		words := len(strings.Fields(text))
		return Article{
			Content:     text,
			WordCount:   words,
			ReadingTime: (words + wordsPerMinute - 1) / wordsPerMinute,
			Excerpt:     makeExcerpt(text),
		}, nil
	}

	return FromHTML(string(body))
}

// findArticleRoot prefers a semantic article container; page chrome
// outside it never reaches the text pass.
func findArticleRoot(doc *html.Node) *html.Node {
	for _, tag := range []string{"article", "main"} {
		if n := findElement(doc, tag); n != nil {
			return n
		}
	}
	if body := findElement(doc, "body"); body != nil {
		return body
	}
	return doc
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findTitle(doc *html.Node) string {
	if t := metaContent(doc, "property", "og:title"); t != "" {
		return t
	}
	if n := findElement(doc, "title"); n != nil && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	if n := findElement(doc, "h1"); n != nil {
		var sb strings.Builder
		collectText(n, &sb, 0)
		return strings.TrimSpace(sb.String())
	}
	return ""
}

func findByline(doc *html.Node) string {
	if a := metaContent(doc, "name", "author"); a != "" {
		return a
	}
	return metaContent(doc, "property", "article:author")
}

func metaContent(n *html.Node, attrKey, attrVal string) string {
	if n.Type == html.ElementNode && n.Data == "meta" {
		if strings.EqualFold(getAttr(n, attrKey), attrVal) {
			return strings.TrimSpace(getAttr(n, "content"))
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if v := metaContent(c, attrKey, attrVal); v != "" {
			return v
		}
	}
	return ""
}

func collectText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 80 {
		return
	}

	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "form",
			"nav", "footer", "header", "aside", "button":
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb, depth+1)
	}
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func makeExcerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptRunes {
		return content
	}
	return string(runes[:excerptRunes])
}
