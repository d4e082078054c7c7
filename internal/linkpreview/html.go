package linkpreview

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type pageMeta struct {
	title       string
	ogTitle     string
	description string
	ogDesc      string
	images      []string
	firstImg    string
}

func parseHTML(r io.Reader, base *url.URL) (Preview, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Preview{}, fmt.Errorf("link preview: parse html: %w", err)
	}

	var meta pageMeta
	walk(doc, &meta)

	preview := Preview{Title: firstNonEmpty(meta.ogTitle, meta.title)}
	if desc := firstNonEmpty(meta.ogDesc, meta.description); desc != "" {
		preview.Description = &desc
	}
	images := meta.images
	if len(images) == 0 && meta.firstImg != "" {
		images = []string{meta.firstImg}
	}
	for _, img := range images {
		if abs := resolve(base, img); abs != "" {
			preview.ImageURL = &abs
			break
		}
	}
	return preview, nil
}

func walk(n *html.Node, meta *pageMeta) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Title:
			if meta.title == "" {
				meta.title = strings.TrimSpace(textOf(n))
			}
		case atom.Meta:
			readMeta(n, meta)
		case atom.Img:
			if meta.firstImg == "" {
				meta.firstImg = strings.TrimSpace(attr(n, "src"))
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, meta)
	}
}

func readMeta(n *html.Node, meta *pageMeta) {
	key := strings.ToLower(firstNonEmpty(attr(n, "property"), attr(n, "name")))
	content := strings.TrimSpace(attr(n, "content"))
	if content == "" {
		return
	}
	switch key {
	case "og:title", "twitter:title":
		if meta.ogTitle == "" {
			meta.ogTitle = content
		}
	case "og:description", "twitter:description":
		if meta.ogDesc == "" {
			meta.ogDesc = content
		}
	case "description":
		if meta.description == "" {
			meta.description = content
		}
	case "og:image", "og:image:url", "twitter:image":
		meta.images = append(meta.images, content)
	}
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
