package render

// Format selects how a section's markdown body becomes HTML.
type Format int

const (
	// FormatBullets renders each line as a styled list item with an
	// accent chevron.
	FormatBullets Format = iota

	// FormatParagraph renders the body as inline-styled running text.
	FormatParagraph

	// FormatScouting is paragraph text with the "Why it matters:" tail
	// pulled out into its own styled line.
	FormatScouting

	// FormatReads renders "**[Title](URL)** · Source · description"
	// lines as linked read cards with an optional Paywall tag.
	FormatReads
)

// Rule binds one section marker to its template placeholder and its
// HTML treatment. The accent colors what FormatBullets and FormatReads
// put in front of each item.
type Rule struct {
	Name        string
	Placeholder string
	Accent      string
	Format      Format
}

// rules is the full section registry in issue order. The marker names
// must stay in lockstep with the format instructions in internal/prompt.
// NYC_CALLOUT is absent: it is optional and handled separately.
var rules = []Rule{
	{"GOOD_MORNING", "{{GOOD_MORNING_CONTENT}}", "", FormatParagraph},
	{"BEFORE_THE_BELL_MARKETS", "{{BEFORE_THE_BELL_MARKETS}}", "#34D399", FormatBullets},
	{"BEFORE_THE_BELL_EARNINGS_LAST", "{{BEFORE_THE_BELL_EARNINGS_LAST}}", "#34D399", FormatBullets},
	{"BEFORE_THE_BELL_EARNINGS_UPCOMING", "{{BEFORE_THE_BELL_EARNINGS_UPCOMING}}", "", FormatParagraph},
	{"HEADLINE_ROUNDUP", "{{HEADLINE_ROUNDUP}}", "#F472B6", FormatBullets},
	{"PHARMA_HEALTH_INTEL", "{{PHARMA_HEALTH_INTEL}}", "#22D3EE", FormatBullets},
	{"TECH_AI", "{{TECH_AI}}", "#FBBF24", FormatBullets},
	{"DEAL_FLOW_MA", "{{DEAL_FLOW_MA}}", "#FB923C", FormatBullets},
	{"DEAL_FLOW_VENTURE", "{{DEAL_FLOW_VENTURE}}", "#FB923C", FormatBullets},
	{"DEAL_FLOW_IPO", "{{DEAL_FLOW_IPO}}", "#FB923C", FormatBullets},
	{"DEAL_FLOW_SCOUTING", "{{DEAL_FLOW_SCOUTING}}", "", FormatScouting},
	{"NYC_EVENTS", "{{NYC_EVENTS}}", "#4ADE80", FormatBullets},
	{"NYC_RESTAURANT", "{{NYC_RESTAURANT}}", "", FormatParagraph},
	{"CULTURE_SPORTS", "{{CULTURE_SPORTS}}", "#E879F9", FormatBullets},
	{"CULTURE_MEME", "{{CULTURE_MEME}}", "", FormatParagraph},
	{"CULTURE_INTERNET", "{{CULTURE_INTERNET}}", "#E879F9", FormatBullets},
	{"READS_OF_THE_WEEK", "{{READS_OF_THE_WEEK}}", "#60A5FA", FormatReads},
}

// calloutSection is the optional special-callout marker. Its value
// "NONE" means omit the card entirely.
const calloutSection = "NYC_CALLOUT"

const calloutNone = "NONE"

// SectionNames returns every marker name the issue format defines,
// including the optional callout. The response parser takes this as
// its recognized-header set.
func SectionNames() []string {
	names := make([]string, 0, len(rules)+1)
	for _, r := range rules {
		names = append(names, r.Name)
	}
	return append(names, calloutSection)
}
