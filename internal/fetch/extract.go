package fetch

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxColors bounds the palette reported for a page.
const maxColors = 8

// skipElements hold no readable text.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Footer:   true,
}

var hexColor = regexp.MustCompile(`#(?:[0-9a-fA-F]{6}|[0-9a-fA-F]{3})\b`)

// extractPage fills page from a parsed document.
func extractPage(doc *html.Node, page *Page) {
	var text strings.Builder
	var css strings.Builder

	var walk func(n *html.Node, skip bool)
	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if page.Title == "" {
					page.Title = strings.TrimSpace(textContent(n))
				}
			case atom.Meta:
				readMeta(n, page)
			case atom.Style:
				css.WriteString(textContent(n))
				css.WriteString("\n")
			}
			if style := attr(n, "style"); style != "" {
				css.WriteString(style)
				css.WriteString("\n")
			}
			if skipElements[n.DataAtom] {
				skip = true
			}
			if !skip && isBlockElement(n.DataAtom) && text.Len() > 0 {
				text.WriteString("\n\n")
			}
		}
		if n.Type == html.TextNode && !skip {
			if t := strings.TrimSpace(n.Data); t != "" {
				text.WriteString(t)
				text.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
		if n.Type == html.ElementNode && !skip && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
			text.WriteString("\n")
		}
	}
	walk(doc, false)

	page.Text = cleanWhitespace(text.String())
	colors := findColors(css.String())
	if page.ThemeColor != "" {
		colors[normalizeColor(page.ThemeColor)] += maxColors
	}
	page.Colors = topColors(colors, maxColors)
}

func readMeta(n *html.Node, page *Page) {
	name := strings.ToLower(attr(n, "name"))
	if name == "" {
		name = strings.ToLower(attr(n, "property"))
	}
	content := strings.TrimSpace(attr(n, "content"))
	switch name {
	case "description", "og:description":
		if page.Description == "" {
			page.Description = content
		}
	case "theme-color":
		if hexColor.MatchString(content) {
			page.ThemeColor = normalizeColor(content)
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

// findColors counts hex colors in s, keyed by their six-digit
// lowercase form.
func findColors(s string) map[string]int {
	counts := make(map[string]int)
	for _, m := range hexColor.FindAllString(s, -1) {
		counts[normalizeColor(m)]++
	}
	return counts
}

// normalizeColor expands #abc to #aabbcc and lowercases.
func normalizeColor(c string) string {
	c = strings.ToLower(c)
	if len(c) == 4 {
		return string([]byte{'#', c[1], c[1], c[2], c[2], c[3], c[3]})
	}
	return c
}

// topColors returns the n most frequent colors, ties broken by value.
func topColors(counts map[string]int, n int) []string {
	out := make([]string, 0, len(counts))
	for c := range counts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > n {
		out = out[:n]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main, atom.Header,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Dl, atom.Dd, atom.Dt, atom.Figcaption, atom.Figure,
		atom.Hr:
		return true
	}
	return false
}

// cleanWhitespace collapses runs of spaces and blank lines.
func cleanWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	cleaned := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if prevEmpty {
				continue
			}
			prevEmpty = true
		} else {
			prevEmpty = false
		}
		cleaned = append(cleaned, line)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// stripTags is the fallback for documents the parser rejects.
func stripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return cleanWhitespace(b.String())
		case html.TextToken:
			b.Write(z.Text())
			b.WriteString(" ")
		}
	}
}
