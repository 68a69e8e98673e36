// Package extract normalizes one raw mailbox message into plain text
// plus the links and images present in it. Extraction is deliberately
// shallow: the correctness requirement is "no fabricated text, no
// fabricated URLs", not perfect rendering.
package extract

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/r8slab/the-drop/internal/mailstore"
)

// Caps keep one noisy newsletter from flooding the prompt.
const (
	maxLinks  = 30
	maxImages = 10
)

// ErrEmptyBody is returned when no text remains after stripping.
// Callers skip the message rather than passing an empty item downstream.
var ErrEmptyBody = errors.New("no text content after stripping")

// LinkRef is a verified (anchor text, URL) pair. Every URL is present
// verbatim in the originating message body; no synthesized URLs ever
// enter this structure.
type LinkRef struct {
	AnchorText string
	URL        string
}

// ImageRef is an image URL with its alt text.
type ImageRef struct {
	Src string
	Alt string
}

// Item is the normalized output for one message.
type Item struct {
	// Source is the newsletter name, derived from the From header's
	// display name (falling back to the bare address).
	Source   string
	Subject  string
	Received time.Time

	// Text is the readable plain text of the body.
	Text string

	// Links holds every http(s) anchor in document order, capped at
	// maxLinks.
	Links []LinkRef

	// Images holds content images (tracking pixels and data: URIs
	// excluded), capped at maxImages.
	Images []ImageRef

	// MarketImage is the market-snapshot image located near a
	// "Before the Bell" style heading, when one was found.
	MarketImage string
}

// skipElements are HTML elements whose content is never newsletter copy.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Template: true,
}

// boilerplateMarkers flag footer lines that carry no editorial content.
var boilerplateMarkers = []string{
	"unsubscribe",
	"view this email in your browser",
	"view in browser",
	"update your preferences",
	"manage your subscription",
	"email preferences",
	"sent this email to",
	"why did i get this",
}

// marketHeadingPattern matches section headings that precede the market
// snapshot image in finance newsletters.
var marketHeadingPattern = regexp.MustCompile(`(?i)before\s*the\s*bell|market\s*snapshot|markets\s*at\s*a\s*glance`)

// marketAltKeywords identify a market image by its alt text.
var marketAltKeywords = []string{"market", "futures", "indices", "stocks", "bell"}

// nonContentImageMarkers identify logos, icons, and spacer images by URL
// or alt text.
var nonContentImageMarkers = []string{"logo", "icon", "button", "social", "twitter", "facebook", "linkedin", "spacer", "1x1", "pixel"}

// FromMessage normalizes one raw message. The HTML body is preferred;
// a plain-text body is used as-is when no HTML part exists. Returns
// ErrEmptyBody when nothing readable remains.
func FromMessage(msg mailstore.RawMessage) (*Item, error) {
	item := &Item{
		Source:   sourceName(msg.From),
		Subject:  msg.Subject,
		Received: msg.Received,
	}

	switch {
	case msg.BodyHTML != "":
		doc, err := html.Parse(strings.NewReader(msg.BodyHTML))
		if err != nil {
			// Malformed HTML falls back to the plain part if there
			// is one.
			if msg.BodyText == "" {
				return nil, ErrEmptyBody
			}
			item.Text = cleanText(msg.BodyText)
		} else {
			w := &walker{}
			w.walk(doc)
			item.Text = cleanText(w.text.String())
			item.Links = w.links
			item.Images = w.images
			item.MarketImage = w.marketImage
		}
	case msg.BodyText != "":
		item.Text = cleanText(msg.BodyText)
	}

	if item.Text == "" {
		return nil, ErrEmptyBody
	}
	return item, nil
}

// sourceName derives the newsletter name from a From header.
func sourceName(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Address
}

// walker accumulates text, links, and images during one DOM traversal.
type walker struct {
	text   strings.Builder
	links  []LinkRef
	images []ImageRef

	marketImage    string
	pendingHeading bool
}

func (w *walker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		if skipElements[n.DataAtom] {
			return
		}
		switch n.DataAtom {
		case atom.A:
			w.collectAnchor(n)
		case atom.Img:
			w.collectImage(n)
		}
		if isBlockElement(n.DataAtom) && w.text.Len() > 0 {
			w.text.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			w.text.WriteString(text)
			w.text.WriteString(" ")
			if marketHeadingPattern.MatchString(text) {
				w.pendingHeading = true
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		w.text.WriteString("\n")
	}
}

// collectAnchor records one (anchor text, URL) pair. Anchors with empty
// or non-http(s) targets are dropped: mailto:, tel:, javascript:, and
// fragment links carry nothing the issue can cite.
func (w *walker) collectAnchor(n *html.Node) {
	if len(w.links) >= maxLinks {
		return
	}
	href := strings.TrimSpace(attr(n, "href"))
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return
	}
	text := strings.Join(strings.Fields(textContent(n)), " ")
	w.links = append(w.links, LinkRef{AnchorText: text, URL: href})
}

// collectImage records one content image, skipping tracking pixels,
// inline data URIs, and obvious chrome (logos, social buttons).
func (w *walker) collectImage(n *html.Node) {
	src := strings.TrimSpace(attr(n, "src"))
	if src == "" || strings.HasPrefix(src, "data:") {
		return
	}
	if attr(n, "width") == "1" || attr(n, "height") == "1" {
		return
	}
	alt := strings.TrimSpace(attr(n, "alt"))

	if len(w.images) < maxImages {
		w.images = append(w.images, ImageRef{Src: src, Alt: alt})
	}

	if isNonContentImage(src, alt) {
		return
	}

	// A heading like "Before the Bell" was just seen; the next content
	// image in document order is the market snapshot.
	if w.pendingHeading && w.marketImage == "" {
		w.marketImage = src
		w.pendingHeading = false
	}
}

func isNonContentImage(src, alt string) bool {
	lowerSrc := strings.ToLower(src)
	lowerAlt := strings.ToLower(alt)
	for _, m := range nonContentImageMarkers {
		if strings.Contains(lowerSrc, m) || strings.Contains(lowerAlt, m) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// textContent returns concatenated text of all children.
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

// isBlockElement returns true for elements that typically render as blocks.
func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Dl, atom.Dd, atom.Dt, atom.Figcaption, atom.Figure,
		atom.Details, atom.Summary, atom.Hr:
		return true
	}
	return false
}

// cleanText normalizes whitespace and drops boilerplate footer lines.
func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	var cleaned []string
	prevEmpty := false

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if isBoilerplateLine(line) {
			continue
		}
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

func isBoilerplateLine(line string) bool {
	if line == "" {
		return false
	}
	lower := strings.ToLower(line)
	for _, m := range boilerplateMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// MarketImage scans extracted items for the market snapshot image from
// an "Exec Sum" style source. Strategies in order: an image located near
// a market heading during extraction, then any exec-sum image whose alt
// text names the markets, then the first content image from an exec-sum
// item. Returns "" when nothing plausible was found.
func MarketImage(items []*Item) string {
	for _, item := range items {
		if !isExecSum(item) {
			continue
		}
		if item.MarketImage != "" {
			return item.MarketImage
		}
	}
	for _, item := range items {
		if !isExecSum(item) {
			continue
		}
		for _, img := range item.Images {
			lower := strings.ToLower(img.Alt)
			for _, kw := range marketAltKeywords {
				if strings.Contains(lower, kw) {
					return img.Src
				}
			}
		}
	}
	for _, item := range items {
		if !isExecSum(item) {
			continue
		}
		for _, img := range item.Images {
			if !isNonContentImage(img.Src, img.Alt) {
				return img.Src
			}
		}
	}
	return ""
}

func isExecSum(item *Item) bool {
	source := strings.ToLower(item.Source)
	subject := strings.ToLower(item.Subject)
	return strings.Contains(source, "exec") ||
		strings.Contains(subject, "exec sum") ||
		strings.Contains(subject, "executive summary")
}
