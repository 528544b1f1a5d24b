package bundler

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"micromachine.dev/dojo-externals/lib/externals"
)

// ErrNoBody is returned for pages without a body, such as frameset documents.
var ErrNoBody = errors.New("html page has no body")

// InjectHTMLAssets adds a script tag per asset to the page read from r. With
// Append unset the tags go before the first script already in the body, so the
// loader runs before the bundle.
func InjectHTMLAssets(r io.Reader, w io.Writer, cfg externals.HTMLAssetsConfig) error {
	doc, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("could not parse html: %w", err)
	}

	body := findElement(doc, atom.Body)
	if body == nil {
		return ErrNoBody
	}

	var firstScript *html.Node
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Script {
			firstScript = c
			break
		}
	}

	for _, asset := range cfg.Assets {
		tag := scriptTag(asset)
		if !cfg.Append && firstScript != nil {
			body.InsertBefore(tag, firstScript)
			continue
		}
		body.AppendChild(tag)
	}

	return html.Render(w, doc)
}

func scriptTag(src string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr:     []html.Attribute{{Key: "src", Val: src}},
	}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
