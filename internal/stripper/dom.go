package stripper

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func (m Matcher) match(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if m.Tag == "" && m.Class == "" && len(m.TestIDs) == 0 && m.Attr == "" {
		return false
	}
	if m.Tag != "" && !strings.EqualFold(n.Data, m.Tag) {
		return false
	}
	if m.Class != "" {
		class, _ := attr(n, "class")
		if !strings.Contains(class, m.Class) {
			return false
		}
	}
	if len(m.TestIDs) > 0 {
		id, _ := attr(n, "data-testid")
		for _, sub := range m.TestIDs {
			if !strings.Contains(id, sub) {
				return false
			}
		}
	}
	if m.Attr != "" {
		if _, ok := attr(n, m.Attr); !ok {
			return false
		}
	}
	return true
}

// findTiles returns the outermost elements matching any matcher, in document order.
func findTiles(root *html.Node, matchers []Matcher) []*html.Node {
	var tiles []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for _, m := range matchers {
			if m.match(n) {
				tiles = append(tiles, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return tiles
}

// findAll returns descendants of n for which pred holds, in document order.
func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if pred(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func isElement(names ...string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, name := range names {
			if n.Data == name {
				return true
			}
		}
		return false
	}
}

// text returns the whitespace-collapsed text of n. Script and style content is
// ignored, as is anything inside elements named in skip.
func text(n *html.Node, skip ...atom.Atom) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
			for _, a := range skip {
				if n.DataAtom == a {
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
