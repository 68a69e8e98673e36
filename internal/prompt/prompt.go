// Package prompt serializes the source corpus and the static editorial
// persona into one bounded-size document for the Synthesizer. Every
// retained link appears verbatim as a markdown link so the model can
// echo it unchanged; that is the mechanism behind the link-fidelity
// guarantee enforced downstream by the response parser.
package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/r8slab/the-drop/internal/corpus"
)

// Document is the prompt handed to the Synthesizer: the static persona
// as the system text, the serialized corpus plus format instructions as
// the user text.
type Document struct {
	System string
	User   string

	// URLs is the set of link URLs actually serialized into the
	// document. The response parser verifies model output against it.
	URLs map[string]bool
}

// Size returns the total serialized size in bytes.
func (d *Document) Size() int {
	return len(d.System) + len(d.User)
}

// Limits bound the assembled document.
type Limits struct {
	// MaxBytes caps Document.Size. When exceeded, whole items are
	// dropped lowest-tier-first until the document fits. Items are
	// never cut mid-sentence or mid-link.
	MaxBytes int

	// MaxItemBytes caps one item's plain text. Longer texts are cut
	// at a sentence boundary.
	MaxItemBytes int

	// MaxLinksPerItem caps how many links one item contributes.
	MaxLinksPerItem int
}

// Assembler builds prompt documents.
type Assembler struct {
	limits Limits
	logger *slog.Logger
}

// NewAssembler creates an assembler with the given limits.
func NewAssembler(limits Limits, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		limits: limits,
		logger: logger.With("component", "prompt"),
	}
}

// itemBlock is one serialized item plus the bookkeeping needed to drop
// it whole under budget pressure.
type itemBlock struct {
	text   string
	source string
	tier   corpus.Tier
	urls   []string
}

// Assemble serializes the corpus into a Document for the given run
// date. An empty corpus still yields a syntactically valid document.
//
// Budget degradation is tier-ordered: when the document exceeds
// MaxBytes, whole item blocks are dropped from the back of the corpus
// order (lowest tier first, and within a tier the last-ordered source)
// until the document fits. Higher-tier items are never touched while a
// lower-tier item remains.
func (a *Assembler) Assemble(c *corpus.Corpus, now time.Time) *Document {
	blocks := a.serialize(c)

	preamble := runPreamble(now)
	request := "Please generate today's issue of The Drop based on these sources.\n\n" + SectionFormat()
	fixed := len(Persona()) + len(preamble) + len(request) + 2 // joining newlines

	total := fixed
	for _, b := range blocks {
		total += len(b.text)
	}

	for total > a.limits.MaxBytes && len(blocks) > 0 {
		last := blocks[len(blocks)-1]
		blocks = blocks[:len(blocks)-1]
		total -= len(last.text)
		a.logger.Warn("prompt over budget, dropped item",
			"source", last.source,
			"tier", last.tier.String(),
			"bytes", len(last.text),
		)
	}

	var user strings.Builder
	user.WriteString(preamble)
	urls := make(map[string]bool)
	for _, b := range blocks {
		user.WriteString(b.text)
		for _, u := range b.urls {
			urls[u] = true
		}
	}
	user.WriteString("\n")
	user.WriteString(request)

	doc := &Document{
		System: Persona(),
		User:   user.String(),
		URLs:   urls,
	}
	a.logger.Info("prompt assembled",
		"bytes", doc.Size(),
		"items", len(blocks),
		"links", len(urls),
	)
	return doc
}

// serialize renders every corpus item as one block, in corpus order.
// Corpus order is (tier, source, receipt time), so the slice is already
// arranged for back-first budget drops.
func (a *Assembler) serialize(c *corpus.Corpus) []itemBlock {
	var blocks []itemBlock
	for _, src := range c.Sources {
		for _, item := range src.Items {
			var b strings.Builder
			fmt.Fprintf(&b, "\n---\nSOURCE: %s (%s)\nSUBJECT: %s\nDATE: %s\n\nCONTENT:\n%s\n",
				src.Name,
				src.Tier,
				item.Subject,
				formatDate(item.Received),
				truncateAtSentence(item.Text, a.limits.MaxItemBytes),
			)

			links := item.Links
			if len(links) > a.limits.MaxLinksPerItem {
				links = links[:a.limits.MaxLinksPerItem]
			}
			var urls []string
			if len(links) > 0 {
				b.WriteString("\nLINKS:\n")
				for _, l := range links {
					fmt.Fprintf(&b, "- [%s](%s)\n", l.AnchorText, l.URL)
					urls = append(urls, l.URL)
				}
			}
			b.WriteString("---\n")

			blocks = append(blocks, itemBlock{
				text:   b.String(),
				source: src.Name,
				tier:   src.Tier,
				urls:   urls,
			})
		}
	}
	return blocks
}

// runPreamble dates the issue and sets its weight: Monday issues are
// denser, mid-week issues lighter.
func runPreamble(now time.Time) string {
	density := "lighter (5-7 min read, 40-50 items)"
	kind := "mid-week"
	if now.Weekday() == time.Monday {
		density = "denser (8-10 min read, 55-65 items)"
		kind = "Monday"
	}
	return fmt.Sprintf(
		"Today is %s.\n\nThis is a %s issue, so it should be %s.\n\nHere are the newsletter emails received since the last issue:\n",
		now.Format("Monday, January 2, 2006"), kind, density,
	)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("Mon, 2 Jan 2006 15:04 MST")
}

// truncateAtSentence cuts s to at most max bytes at a sentence or line
// boundary, never mid-sentence. A text with no boundary before max is
// cut at the last word break.
func truncateAtSentence(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]

	best := -1
	for _, sep := range []string{". ", ".\n", "! ", "? ", "\n"} {
		if i := strings.LastIndex(cut, sep); i > best {
			best = i + len(sep) - 1
		}
	}
	if best > 0 {
		return strings.TrimRight(cut[:best+1], " \n")
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		return cut[:i]
	}
	return cut
}
