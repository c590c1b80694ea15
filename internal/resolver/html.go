package resolver

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SteamDB decorates page titles; everything from the first marker on is
// dropped.
var titleMarkers = []string{"· SteamDB", "- SteamDB", "· AppID", "AppID:", "on SteamDB"}

// pageCandidates holds the places a SteamDB page names the app, in the order
// they are trusted.
type pageCandidates struct {
	title   string
	ogTitle string
	twitter string
	ldJSON  string
	h1      string
}

func (c pageCandidates) ordered() []string {
	return []string{c.title, c.ogTitle, c.twitter, ldJSONName(c.ldJSON), c.h1}
}

// nameFromHTML extracts the app name from a SteamDB page.
func nameFromHTML(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", err
	}

	var c pageCandidates
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if c.title == "" {
					c.title = textContent(n)
				}
			case atom.Meta:
				content := attr(n, "content")
				if attr(n, "property") == "og:title" && c.ogTitle == "" {
					c.ogTitle = content
				}
				if attr(n, "name") == "twitter:title" && c.twitter == "" {
					c.twitter = content
				}
			case atom.Script:
				if attr(n, "type") == "application/ld+json" && c.ldJSON == "" {
					c.ldJSON = textContent(n)
				}
			case atom.H1:
				if c.h1 == "" {
					c.h1 = textContent(n)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	for _, candidate := range c.ordered() {
		if name := cleanTitle(candidate); name != "" {
			return name, nil
		}
	}
	return "", ErrNotFound
}

// cleanTitle strips SteamDB decorations from a title string.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "·"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	for _, marker := range titleMarkers {
		if i := strings.Index(s, marker); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
	}
	return s
}

func ldJSONName(raw string) string {
	if raw == "" {
		return ""
	}
	var doc struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return ""
	}
	return doc.Name
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
