package render

import (
	"strings"
	"time"

	"github.com/r8slab/the-drop/internal/parse"
)

// sectionTitles maps markers to human headings for the text/plain part.
var sectionTitles = map[string]string{
	"GOOD_MORNING":                      "",
	"BEFORE_THE_BELL_MARKETS":           "BEFORE THE BELL",
	"BEFORE_THE_BELL_EARNINGS_LAST":     "EARNINGS: LAST SESSION",
	"BEFORE_THE_BELL_EARNINGS_UPCOMING": "EARNINGS: ON DECK",
	"HEADLINE_ROUNDUP":                  "HEADLINE ROUNDUP",
	"PHARMA_HEALTH_INTEL":               "PHARMA & HEALTH INTEL",
	"TECH_AI":                           "TECH & AI",
	"DEAL_FLOW_MA":                      "DEAL FLOW: M&A",
	"DEAL_FLOW_VENTURE":                 "DEAL FLOW: VENTURE",
	"DEAL_FLOW_IPO":                     "DEAL FLOW: IPO WATCH",
	"DEAL_FLOW_SCOUTING":                "SCOUTING REPORT",
	"NYC_EVENTS":                        "NYC THIS WEEK",
	"NYC_RESTAURANT":                    "TABLE FOR TWO",
	"CULTURE_SPORTS":                    "CULTURE: SPORTS",
	"CULTURE_MEME":                      "MEME OF THE WEEK",
	"CULTURE_INTERNET":                  "CULTURE: TERMINALLY ONLINE",
	"READS_OF_THE_WEEK":                 "READS OF THE WEEK",
}

// PlainText renders the issue as the text/plain alternative: same
// content as the HTML part, markdown links flattened to "text (url)".
func (r *Renderer) PlainText(content *parse.IssueContent, now time.Time) string {
	var b strings.Builder
	b.WriteString("THE DROP\n")
	b.WriteString(now.Format("Monday, January 02, 2006"))
	b.WriteString("\n\n")

	if sec := content.Section(calloutSection); sec != nil {
		text := strings.TrimSpace(sec.Body)
		if text != "" && !strings.EqualFold(text, calloutNone) {
			b.WriteString("NEW OPENING\n")
			b.WriteString(flattenMarkdown(text))
			b.WriteString("\n\n")
		}
	}

	for _, rule := range rules {
		sec := content.Section(rule.Name)
		if sec == nil || strings.TrimSpace(sec.Body) == "" {
			continue
		}
		if title := sectionTitles[rule.Name]; title != "" {
			b.WriteString(title)
			b.WriteString("\n")
		}
		b.WriteString(flattenMarkdown(sec.Body))
		b.WriteString("\n\n")
	}

	b.WriteString("The Drop · curated daily from your own inbox\n")
	return b.String()
}

// flattenMarkdown strips bold markers and rewrites links as
// "text (url)" so nothing is lost in the plain part.
func flattenMarkdown(s string) string {
	s = boldPattern.ReplaceAllString(s, "$1")
	return linkPattern.ReplaceAllString(s, "$1 ($2)")
}
