package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/r8slab/the-drop/internal/corpus"
	"github.com/r8slab/the-drop/internal/extract"
)

var testLimits = Limits{
	MaxBytes:        120_000,
	MaxItemBytes:    2000,
	MaxLinksPerItem: 10,
}

func twoTierCorpus() *corpus.Corpus {
	day := time.Date(2025, 9, 12, 7, 0, 0, 0, time.UTC)
	return &corpus.Corpus{Sources: []corpus.Source{
		{
			Name: "Exec Sum",
			Tier: corpus.TierPrimary,
			Items: []*extract.Item{{
				Source:   "Exec Sum",
				Subject:  "Daily dose",
				Received: day,
				Text:     "Private credit keeps swallowing the leveraged loan market.",
				Links:    []extract.LinkRef{{AnchorText: "story", URL: "https://example.com/credit"}},
			}},
		},
		{
			Name: "Infatuation",
			Tier: corpus.TierLifestyle,
			Items: []*extract.Item{{
				Source:   "Infatuation",
				Subject:  "Where to eat",
				Received: day,
				Text:     "A new ramen spot opened in the East Village and the line is already unreasonable.",
				Links:    []extract.LinkRef{{AnchorText: "review", URL: "https://example.com/ramen"}},
			}},
		},
	}}
}

func TestAssembleContainsSources(t *testing.T) {
	a := NewAssembler(testLimits, nil)
	doc := a.Assemble(twoTierCorpus(), time.Date(2025, 9, 12, 7, 0, 0, 0, time.UTC))

	if doc.System != Persona() {
		t.Error("System prompt is not the persona")
	}
	for _, want := range []string{
		"SOURCE: Exec Sum (primary)",
		"SOURCE: Infatuation (lifestyle)",
		"[story](https://example.com/credit)",
		"## EMAIL_SUBJECT",
		"## READS_OF_THE_WEEK",
	} {
		if !strings.Contains(doc.User, want) {
			t.Errorf("User prompt missing %q", want)
		}
	}
	if !doc.URLs["https://example.com/credit"] || !doc.URLs["https://example.com/ramen"] {
		t.Errorf("URLs = %v, want both source links", doc.URLs)
	}
}

func TestAssembleBudgetDropsLowestTierFirst(t *testing.T) {
	c := twoTierCorpus()

	full := NewAssembler(testLimits, nil).Assemble(c, time.Date(2025, 9, 12, 7, 0, 0, 0, time.UTC))

	tight := testLimits
	tight.MaxBytes = full.Size() - 1
	doc := NewAssembler(tight, nil).Assemble(c, time.Date(2025, 9, 12, 7, 0, 0, 0, time.UTC))

	if strings.Contains(doc.User, "SOURCE: Infatuation") {
		t.Error("lifestyle item survived the budget cut")
	}
	if !strings.Contains(doc.User, "SOURCE: Exec Sum") {
		t.Error("primary item was dropped before the lifestyle item")
	}
	if doc.URLs["https://example.com/ramen"] {
		t.Error("URL of a dropped item leaked into the verification set")
	}
	if !doc.URLs["https://example.com/credit"] {
		t.Error("URL of a kept item missing from the verification set")
	}
	if doc.Size() > tight.MaxBytes {
		t.Errorf("Size() = %d exceeds MaxBytes %d", doc.Size(), tight.MaxBytes)
	}
}

func TestAssembleEmptyCorpus(t *testing.T) {
	a := NewAssembler(testLimits, nil)
	doc := a.Assemble(&corpus.Corpus{}, time.Date(2025, 9, 12, 7, 0, 0, 0, time.UTC))

	if doc.System == "" || doc.User == "" {
		t.Error("empty corpus must still yield a well-formed document")
	}
	if len(doc.URLs) != 0 {
		t.Errorf("URLs = %v, want empty", doc.URLs)
	}
}

func TestAssembleLinkCap(t *testing.T) {
	day := time.Date(2025, 9, 12, 7, 0, 0, 0, time.UTC)
	var links []extract.LinkRef
	for i := 0; i < 25; i++ {
		links = append(links, extract.LinkRef{AnchorText: "x", URL: "https://example.com/" + string(rune('a'+i))})
	}
	c := &corpus.Corpus{Sources: []corpus.Source{{
		Name: "Exec Sum",
		Tier: corpus.TierPrimary,
		Items: []*extract.Item{{
			Source: "Exec Sum", Subject: "s", Received: day,
			Text: "lots of links", Links: links,
		}},
	}}}

	limits := testLimits
	limits.MaxLinksPerItem = 5
	doc := NewAssembler(limits, nil).Assemble(c, day)

	if len(doc.URLs) != 5 {
		t.Errorf("len(URLs) = %d, want 5", len(doc.URLs))
	}
}

func TestRunPreambleDensity(t *testing.T) {
	monday := time.Date(2025, 9, 15, 7, 0, 0, 0, time.UTC)
	if monday.Weekday() != time.Monday {
		t.Fatal("test date is not a Monday")
	}
	if got := runPreamble(monday); !strings.Contains(got, "Monday issue") || !strings.Contains(got, "denser") {
		t.Errorf("Monday preamble = %q", got)
	}
	wednesday := monday.Add(48 * time.Hour)
	if got := runPreamble(wednesday); !strings.Contains(got, "mid-week issue") || !strings.Contains(got, "lighter") {
		t.Errorf("mid-week preamble = %q", got)
	}
}

func TestTruncateAtSentence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short text untouched", "One sentence.", 100, "One sentence."},
		{"cuts at sentence", "First point. Second point. Third point runs long here.", 30, "First point. Second point."},
		{"cuts at newline", "line one\nline two\nline three and more", 20, "line one\nline two"},
		{"word break fallback", "nosentenceboundary in this stretch of text", 25, "nosentenceboundary in"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateAtSentence(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncateAtSentence(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if len(got) > tt.max {
				t.Errorf("result exceeds max: %d > %d", len(got), tt.max)
			}
		})
	}
}
