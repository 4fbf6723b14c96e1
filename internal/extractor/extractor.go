// Package extractor pulls hyperlinks and form descriptors out of fetched
// HTML. Extraction is best-effort: malformed markup yields whatever can
// still be located, and a parse failure degrades to an empty result
// rather than failing the page.
package extractor

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// FormDescriptor captures an HTML form: its resolved action URL, method,
// and the named inputs in document order.
type FormDescriptor struct {
	Action *url.URL
	Method string
	Params []string
}

// IsHTML reports whether a response body should be parsed as HTML, by
// content type header first and content sniffing as fallback.
func IsHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	if contentType != "" {
		return false
	}
	return strings.Contains(http.DetectContentType(body), "html")
}

// Links returns the distinct outbound hyperlinks found in body, resolved
// against base. mailto:, javascript:, and empty hrefs are skipped;
// duplicates within the page collapse before the caller normalizes them.
func Links(base *url.URL, body []byte) []*url.URL {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		u, err := base.Parse(href)
		if err != nil {
			return
		}
		u.Fragment = ""
		key := u.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, u)
	})
	return links
}

// Forms returns descriptors for every form in body. Actions resolve
// against base and default to the page URL itself; the method defaults
// to GET. Params lists the named inputs, selects, and textareas in
// document order and may be empty.
func Forms(base *url.URL, body []byte) []FormDescriptor {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var forms []FormDescriptor
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "form" {
			forms = append(forms, describeForm(base, n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return forms
}

func describeForm(base *url.URL, n *html.Node) FormDescriptor {
	action := base
	if raw := strings.TrimSpace(attr(n, "action")); raw != "" {
		if resolved, err := base.Parse(raw); err == nil {
			resolved.Fragment = ""
			action = resolved
		}
	}

	method := strings.ToUpper(strings.TrimSpace(attr(n, "method")))
	if method == "" {
		method = http.MethodGet
	}

	var params []string
	seen := make(map[string]struct{})
	var collect func(*html.Node)
	collect = func(c *html.Node) {
		if c.Type == html.ElementNode {
			switch c.Data {
			case "input", "select", "textarea":
				if name := strings.TrimSpace(attr(c, "name")); name != "" {
					if _, dup := seen[name]; !dup {
						seen[name] = struct{}{}
						params = append(params, name)
					}
				}
			}
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collect(child)
	}

	return FormDescriptor{Action: action, Method: method, Params: params}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
