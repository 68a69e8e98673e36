// Package render turns parsed issue content into the final HTML email.
// The template is plain placeholder substitution rather than
// html/template: the body fragments are pre-styled HTML built from the
// model's markdown, and the placeholder audit is what guards against a
// template and section registry drifting apart.
package render

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/r8slab/the-drop/internal/parse"
)

//go:embed issue.html
var defaultTemplate string

// Fixed placeholders outside the section registry.
const (
	phDate        = "{{DATE}}"
	phHeaderImage = "{{HEADER_BG_IMAGE}}"
	phMarketImage = "{{EXEC_SUM_MARKET_IMAGE_URL}}"
	phCallout     = "{{NYC_CALLOUT_SECTION}}"
)

// Error reports a template/registry mismatch. Rendering with a
// mismatched template would silently drop sections, so this is always
// fatal.
type Error struct {
	// Missing placeholders the registry expects but the template lacks.
	Missing []string
	// Leftover tokens still present after substitution.
	Leftover []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("template missing placeholders %v", e.Missing))
	}
	if len(e.Leftover) > 0 {
		parts = append(parts, fmt.Sprintf("unfilled placeholders %v", e.Leftover))
	}
	return "render: placeholder mismatch: " + strings.Join(parts, "; ")
}

// calloutTemplate is the card injected for a non-empty NYC_CALLOUT.
// Filled by token substitution, not Sprintf: the markup is full of
// literal % signs (widths, gradient stops) that a format string would
// mangle.
const calloutTemplate = `<tr>
    <td style="padding: 0 0 20px 0;">
      <table role="presentation" cellspacing="0" cellpadding="0" border="0" width="100%" class="section-card" style="background: linear-gradient(135deg, #134E4A 0%, #0F766E 100%); border-radius: 12px; border: 1px solid #14B8A6;">
        <tr>
          <td class="content-padding" style="padding: 20px 28px;">
            <p style="margin: 0 0 6px 0; font-size: 11px; font-weight: 600; color: #5EEAD4; text-transform: uppercase; letter-spacing: 0.12em;">New Opening</p>
            <p style="margin: 0; font-size: 15px; color: #F0FDFA; line-height: 1.6;">
              {{CALLOUT_TEXT}}
            </p>
          </td>
        </tr>
      </table>
    </td>
  </tr>`

// Renderer substitutes issue content into an HTML template.
type Renderer struct {
	template    string
	headerImage string
	logger      *slog.Logger
}

// NewRenderer loads the template (templateFile overrides the embedded
// default) and audits it against the section registry. A template that
// lacks a placeholder the registry expects is rejected here, before any
// issue is generated.
func NewRenderer(templateFile, headerImage string, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl := defaultTemplate
	if templateFile != "" {
		data, err := os.ReadFile(templateFile)
		if err != nil {
			return nil, fmt.Errorf("read template: %w", err)
		}
		tmpl = string(data)
	}

	var missing []string
	for _, ph := range []string{phDate, phHeaderImage, phMarketImage, phCallout} {
		if !strings.Contains(tmpl, ph) {
			missing = append(missing, ph)
		}
	}
	for _, r := range rules {
		if !strings.Contains(tmpl, r.Placeholder) {
			missing = append(missing, r.Placeholder)
		}
	}
	if len(missing) > 0 {
		return nil, &Error{Missing: missing}
	}

	return &Renderer{
		template:    tmpl,
		headerImage: headerImage,
		logger:      logger.With("component", "render"),
	}, nil
}

// placeholderPattern matches any unfilled {{TOKEN}} after substitution.
var placeholderPattern = regexp.MustCompile(`\{\{[A-Z0-9_]+\}\}`)

// Render produces the complete HTML issue for the given date. It is a
// pure function of its arguments: rendering the same content twice
// yields byte-identical output.
func (r *Renderer) Render(content *parse.IssueContent, marketImageURL string, now time.Time) (string, error) {
	out := r.template
	out = strings.ReplaceAll(out, phDate, now.Format("Monday, January 02, 2006"))
	out = strings.ReplaceAll(out, phHeaderImage, r.headerImage)
	out = strings.ReplaceAll(out, phMarketImage, marketImageURL)

	for _, rule := range rules {
		body := ""
		if sec := content.Section(rule.Name); sec != nil {
			body = sec.Body
		}
		out = strings.ReplaceAll(out, rule.Placeholder, formatSection(rule, body))
	}

	// The callout card only appears when the model produced one.
	callout := ""
	if sec := content.Section(calloutSection); sec != nil {
		text := strings.TrimSpace(sec.Body)
		if text != "" && !strings.EqualFold(text, calloutNone) {
			callout = strings.ReplaceAll(calloutTemplate, "{{CALLOUT_TEXT}}", formatParagraph(text))
		}
	}
	out = strings.ReplaceAll(out, phCallout, callout)

	if leftover := placeholderPattern.FindAllString(out, -1); leftover != nil {
		return "", &Error{Leftover: dedupStrings(leftover)}
	}

	r.logger.Info("issue rendered", "bytes", len(out))
	return out, nil
}

func formatSection(rule Rule, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	switch rule.Format {
	case FormatBullets:
		return bulletsToHTML(body, rule.Accent)
	case FormatParagraph:
		return formatParagraph(body)
	case FormatScouting:
		return formatScouting(body)
	case FormatReads:
		return formatReads(body, rule.Accent)
	}
	return body
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Markdown-to-inline-HTML conversion. Email clients need inline styles,
// so this is regex substitution rather than a real markdown renderer.
var (
	boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)
	linkPattern = regexp.MustCompile(`\[(.+?)\]\((.+?)\)`)
)

func inlineMarkdown(s, linkColor string) string {
	s = boldPattern.ReplaceAllString(s, `<strong style="color: #FFFFFF;">$1</strong>`)
	return linkPattern.ReplaceAllString(s, `<a href="$2" style="color: `+linkColor+`;">$1</a>`)
}

// trimBullet strips a leading markdown bullet marker.
func trimBullet(line string) string {
	line = strings.TrimSpace(line)
	for _, prefix := range []string{"- ", "* ", "• "} {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return rest
		}
	}
	return line
}

// bulletsToHTML renders each non-empty line as a styled list item with
// an accent chevron.
func bulletsToHTML(body, accent string) string {
	var items []string
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		line = trimBullet(line)
		if line == "" {
			continue
		}
		items = append(items, fmt.Sprintf(`<li style="margin-bottom: 12px; padding-left: 16px; position: relative; color: #E4E4E7; font-size: 15px; line-height: 1.6;">
                <span style="position: absolute; left: 0; color: %s;">›</span>
                %s
              </li>`, accent, inlineMarkdown(line, "#818CF8")))
	}
	return strings.Join(items, "\n")
}

func formatParagraph(body string) string {
	return inlineMarkdown(strings.TrimSpace(body), "#818CF8")
}

// formatScouting styles the scouting pick, pulling a "Why it matters:"
// tail into its own line when present.
func formatScouting(body string) string {
	content := inlineMarkdown(strings.TrimSpace(body), "#A5B4FC")
	if pick, why, found := strings.Cut(content, "Why it matters:"); found {
		return fmt.Sprintf(`<p style="margin: 0 0 8px 0; font-size: 15px; color: #E4E4E7; line-height: 1.6;">
                %s
              </p>
              <p style="margin: 0; font-size: 14px; color: #A5B4FC; line-height: 1.5;">
                Why it matters: %s
              </p>`, strings.TrimSpace(pick), strings.TrimSpace(why))
	}
	return fmt.Sprintf(`<p style="margin: 0; font-size: 15px; color: #E4E4E7; line-height: 1.6;">%s</p>`, content)
}

const paywallTag = `<span style="display: inline-block; background-color: #3F3F46; color: #A1A1AA; font-size: 11px; padding: 2px 6px; border-radius: 4px; margin-left: 6px;">Paywall</span>`

// Accepted shapes for a read line, most specific first.
var (
	readLinked       = regexp.MustCompile(`^\*\*\[(.+?)\]\((.+?)\)\*\*\s*·\s*(.+?)\s*·\s*(.+)$`)
	readLinkedShort  = regexp.MustCompile(`^\*\*\[(.+?)\]\((.+?)\)\*\*\s*·\s*(.+)$`)
	readBoldNoLink   = regexp.MustCompile(`^\*\*(.+?)\*\*\s*·\s*(.+?)\s*·\s*(.+)$`)
	readPlainLinked  = regexp.MustCompile(`^\[(.+?)\]\((.+?)\)\s*·\s*(.+?)\s*·\s*(.+)$`)
	anyMarkdownLink  = regexp.MustCompile(`\[.+?\]\((.+?)\)`)
	paywallMarker    = regexp.MustCompile(`(?i)\[paywall\]`)
	descriptionLinks = regexp.MustCompile(`\[(.+?)\]\((.+?)\)`)
)

// formatReads renders "**[Title](URL)** · Source · description" lines
// as linked read cards. Lines that do not match any accepted shape are
// kept whole rather than dropped.
func formatReads(body, accent string) string {
	var items []string
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		line = trimBullet(line)
		if line == "" {
			continue
		}

		tag := ""
		if paywallMarker.MatchString(line) {
			tag = paywallTag
			line = strings.TrimSpace(paywallMarker.ReplaceAllString(line, ""))
		}

		title, url, source, description := parseReadLine(line)
		description = descriptionLinks.ReplaceAllString(description, "$1")

		items = append(items, fmt.Sprintf(`<li style="margin-bottom: 16px; padding-left: 16px; position: relative;">
                <span style="position: absolute; left: 0; color: %s;">›</span>
                <a href="%s" style="color: #FFFFFF; font-size: 15px; font-weight: 600; text-decoration: none;">%s</a>
                <span style="color: #71717A; font-size: 14px;"> · %s</span>
                %s
                <p style="margin: 6px 0 0 0; font-size: 14px; color: #A1A1AA; line-height: 1.5;">%s</p>
              </li>`, accent, url, title, source, tag, description))
	}
	return strings.Join(items, "\n")
}

func parseReadLine(line string) (title, url, source, description string) {
	url = "#"
	if m := readLinked.FindStringSubmatch(line); m != nil {
		return m[1], m[2], strings.TrimSpace(m[3]), strings.TrimSpace(m[4])
	}
	if m := readLinkedShort.FindStringSubmatch(line); m != nil {
		title, url = m[1], m[2]
		source = strings.TrimSpace(m[3])
		if src, desc, found := strings.Cut(source, "·"); found {
			source, description = strings.TrimSpace(src), strings.TrimSpace(desc)
		}
		return title, url, source, description
	}
	if m := readBoldNoLink.FindStringSubmatch(line); m != nil {
		title, source, description = m[1], strings.TrimSpace(m[2]), strings.TrimSpace(m[3])
		if lm := anyMarkdownLink.FindStringSubmatch(line); lm != nil {
			url = lm[1]
		}
		return title, url, source, description
	}
	if m := readPlainLinked.FindStringSubmatch(line); m != nil {
		return m[1], m[2], strings.TrimSpace(m[3]), strings.TrimSpace(m[4])
	}
	title = line
	if lm := anyMarkdownLink.FindStringSubmatch(line); lm != nil {
		url = lm[1]
	}
	return title, url, source, description
}
