package fetch

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// noiseSelector matches elements whose text must not reach the word counter.
// Ruby annotations (<rt>, <rp>) would otherwise duplicate the annotated words.
const noiseSelector = "script, style, noscript, template, rt, rp"

// SanitizeHTML removes non-content elements from an HTML page.
func SanitizeHTML(content []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find(noiseSelector).Remove()
	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return []byte(out), nil
}

// pageTitle returns the contents of the first <title> element.
func pageTitle(content []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// extractHTML returns the readable text and title of an HTML page.
func extractHTML(content []byte, pageURL *url.URL) (string, string, error) {
	cleaned, err := SanitizeHTML(content)
	if err != nil {
		return "", "", err
	}

	article, err := readability.FromReader(bytes.NewReader(cleaned), pageURL)
	if err != nil {
		return "", "", fmt.Errorf("extract article: %w", err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = pageTitle(cleaned)
	}
	return article.TextContent, title, nil
}
