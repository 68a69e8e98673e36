// Package parse turns the Synthesizer's raw marker-formatted output
// into structured issue content. Parsing is tolerant: unknown headers
// become body text and malformed stretches are kept verbatim. The one
// thing it is strict about is link provenance: any markdown link whose
// URL was not in the assembled prompt is removed before rendering.
package parse

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"

	"github.com/r8slab/the-drop/internal/extract"
)

// subjectMarker must open the response. Everything else is negotiable.
const subjectMarker = "EMAIL_SUBJECT"

// ErrorKind classifies parse failures.
type ErrorKind int

const (
	// KindMissingSubject: the response does not open with the subject
	// marker, so the output cannot be trusted to follow the format.
	KindMissingSubject ErrorKind = iota

	// KindEmpty: the response has no usable content at all.
	KindEmpty

	// KindUnverifiedLink: a link failed provenance verification while
	// the parser was configured to treat that as fatal.
	KindUnverifiedLink
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingSubject:
		return "missing subject"
	case KindEmpty:
		return "empty response"
	case KindUnverifiedLink:
		return "unverified link"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a parse failure with enough context to log usefully.
type Error struct {
	Kind    ErrorKind
	Section string
	Detail  string
}

func (e *Error) Error() string {
	msg := "parse: " + e.Kind.String()
	if e.Section != "" {
		msg += " in section " + e.Section
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Section is one named block of the issue with its verified links.
type Section struct {
	Name string
	Body string

	// Links holds every verified markdown link in the body, in order.
	Links []extract.LinkRef
}

// StrippedLink records a link removed for failing provenance
// verification. Kept for logging and for tests.
type StrippedLink struct {
	Section    string
	AnchorText string
	URL        string
}

// IssueContent is the parsed issue.
type IssueContent struct {
	// Subject is the raw subject line; may be empty, in which case the
	// caller substitutes a dated fallback.
	Subject string

	Sections []Section
	Stripped []StrippedLink
}

// Section returns the named section, or nil.
func (ic *IssueContent) Section(name string) *Section {
	for i := range ic.Sections {
		if ic.Sections[i].Name == name {
			return &ic.Sections[i]
		}
	}
	return nil
}

// Parser splits marker-formatted text into sections.
type Parser struct {
	known  map[string]bool
	logger *slog.Logger

	// StrictLinks makes an unverified link fatal instead of stripped.
	StrictLinks bool
}

// NewParser creates a parser that recognizes the given section names.
func NewParser(sectionNames []string, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	known := make(map[string]bool, len(sectionNames))
	for _, n := range sectionNames {
		known[n] = true
	}
	return &Parser{
		known:  known,
		logger: logger.With("component", "parse"),
	}
}

// headerName returns the marker name if line is a recognized section
// header, else "".
func (p *Parser) headerName(line string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "## ")
	if !ok {
		return ""
	}
	name := strings.TrimSpace(rest)
	if name == subjectMarker || p.known[name] {
		return name
	}
	return ""
}

// Parse splits raw into sections and verifies every markdown link
// against the verified URL set. Unverified links are stripped to their
// anchor text and recorded, unless StrictLinks is set.
func (p *Parser) Parse(raw string, verified map[string]bool) (*IssueContent, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &Error{Kind: KindEmpty}
	}

	lines := strings.Split(raw, "\n")

	// The first non-blank line must be the subject marker. A response
	// that opens with anything else did not follow the format and
	// cannot be sliced reliably.
	first := ""
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			first = line
			break
		}
	}
	if p.headerName(first) != subjectMarker {
		return nil, &Error{
			Kind:   KindMissingSubject,
			Detail: fmt.Sprintf("response opens with %q", strings.TrimSpace(first)),
		}
	}

	content := &IssueContent{}
	current := ""
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		body.Reset()
		if current == "" {
			return
		}
		if current == subjectMarker {
			// The subject is the first line of its block; anything the
			// model added after it is noise.
			if i := strings.IndexByte(text, '\n'); i >= 0 {
				text = text[:i]
			}
			content.Subject = strings.TrimSpace(text)
			return
		}
		content.Sections = append(content.Sections, Section{Name: current, Body: text})
	}

	for _, line := range lines {
		if name := p.headerName(line); name != "" {
			flush()
			current = name
			continue
		}
		// Unrecognized "## ..." headers and everything else are body
		// text of the current section.
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	if len(content.Sections) == 0 {
		return nil, &Error{Kind: KindEmpty, Detail: "no sections after subject"}
	}
	empty := true
	for _, s := range content.Sections {
		if s.Body != "" {
			empty = false
			break
		}
	}
	if empty {
		return nil, &Error{Kind: KindEmpty, Detail: "all sections empty"}
	}

	if err := p.verifyLinks(content, verified); err != nil {
		return nil, err
	}

	p.logger.Info("response parsed",
		"sections", len(content.Sections),
		"stripped_links", len(content.Stripped),
	)
	return content, nil
}

// verifyLinks walks each section's markdown links and removes any URL
// that was not part of the source material handed to the model.
func (p *Parser) verifyLinks(content *IssueContent, verified map[string]bool) error {
	for i := range content.Sections {
		sec := &content.Sections[i]
		for _, link := range markdownLinks(sec.Body) {
			if verified[link.URL] {
				sec.Links = append(sec.Links, link)
				continue
			}
			if p.StrictLinks {
				return &Error{
					Kind:    KindUnverifiedLink,
					Section: sec.Name,
					Detail:  link.URL,
				}
			}
			p.logger.Warn("link not in source material, stripped",
				"section", sec.Name,
				"url", link.URL,
				"anchor", link.AnchorText,
			)
			sec.Body = stripLink(sec.Body, link)
			content.Stripped = append(content.Stripped, StrippedLink{
				Section:    sec.Name,
				AnchorText: link.AnchorText,
				URL:        link.URL,
			})
		}
	}
	return nil
}

// markdownLinks extracts every link from a markdown fragment, in
// document order. Inline links, images, and autolinks all count: an
// image destination is a URL the model produced just like a link
// destination, so it goes through the same verification.
func markdownLinks(body string) []extract.LinkRef {
	source := []byte(body)
	doc := goldmark.DefaultParser().Parse(gtext.NewReader(source))

	var links []extract.LinkRef
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			links = append(links, extract.LinkRef{
				AnchorText: string(node.Text(source)),
				URL:        string(node.Destination),
			})
		case *ast.Image:
			links = append(links, extract.LinkRef{
				AnchorText: string(node.Text(source)),
				URL:        string(node.Destination),
			})
		case *ast.AutoLink:
			url := string(node.URL(source))
			links = append(links, extract.LinkRef{AnchorText: url, URL: url})
		}
		return ast.WalkContinue, nil
	})
	return links
}

// stripLink replaces every markdown link or image pointing at the given
// URL with its bare anchor text. Anchor text may itself contain balanced
// brackets, so the anchor cannot be matched with a regex: the "](url)"
// tail is located first and the opening bracket found by walking
// backwards with bracket counting.
func stripLink(body string, link extract.LinkRef) string {
	tail := regexp.MustCompile(`\]\(\s*` + regexp.QuoteMeta(link.URL) + `\s*\)`)
	for {
		loc := tail.FindStringIndex(body)
		if loc == nil {
			break
		}
		open := openingBracket(body, loc[0])
		if open < 0 {
			break
		}
		anchor := body[open+1 : loc[0]]
		start := open
		if start > 0 && body[start-1] == '!' {
			start--
		}
		body = body[:start] + anchor + body[loc[1]:]
	}
	// Autolink form.
	return strings.ReplaceAll(body, "<"+link.URL+">", link.URL)
}

// openingBracket returns the index of the '[' matching the ']' at
// closing, or -1 when the text before it is not a well-formed anchor.
func openingBracket(s string, closing int) int {
	depth := 0
	for i := closing; i >= 0; i-- {
		switch s[i] {
		case ']':
			depth++
		case '[':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
