// Package corpus groups extracted newsletter items by source, collapses
// near-duplicate stories, and fixes a deterministic editorial order for
// the prompt: primary sources first, then supplementary, then lifestyle.
package corpus

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/r8slab/the-drop/internal/extract"
)

// Tier is an editorial priority bucket. It controls dedup precedence
// and which sources are truncated first when the prompt exceeds its
// size budget.
type Tier int

const (
	TierPrimary Tier = iota
	TierSupplementary
	TierLifestyle
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSupplementary:
		return "supplementary"
	case TierLifestyle:
		return "lifestyle"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier converts a config string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary":
		return TierPrimary, nil
	case "supplementary":
		return TierSupplementary, nil
	case "lifestyle":
		return TierLifestyle, nil
	default:
		return TierLifestyle, fmt.Errorf("unknown tier %q (valid: primary, supplementary, lifestyle)", s)
	}
}

// ParseTierTable converts the config's source→tier string map into a
// lookup table with case-insensitive source names.
func ParseTierTable(m map[string]string) (map[string]Tier, error) {
	table := make(map[string]Tier, len(m))
	for source, tierName := range m {
		tier, err := ParseTier(tierName)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", source, err)
		}
		table[strings.ToLower(source)] = tier
	}
	return table, nil
}

// Source holds one newsletter's items for the run, in receipt order.
type Source struct {
	Name  string
	Tier  Tier
	Items []*extract.Item
}

// Corpus is the full set of deduplicated, tier-ordered source items for
// one run's time window. Built once per run; read-only thereafter.
type Corpus struct {
	Sources []Source
}

// Empty reports whether the corpus holds no items at all.
func (c *Corpus) Empty() bool {
	return c.ItemCount() == 0
}

// ItemCount returns the total number of items across all sources.
func (c *Corpus) ItemCount() int {
	n := 0
	for _, s := range c.Sources {
		n += len(s.Items)
	}
	return n
}

// LinkURLs returns the set of every link URL in the corpus. The parser
// verifies model output against this set.
func (c *Corpus) LinkURLs() map[string]bool {
	urls := make(map[string]bool)
	for _, s := range c.Sources {
		for _, item := range s.Items {
			for _, l := range item.Links {
				urls[l.URL] = true
			}
		}
	}
	return urls
}

// duplicateThreshold is the token-overlap ratio at or above which two
// items are considered the same story from different sources.
const duplicateThreshold = 0.90

// Builder turns extracted items into a Corpus using a fixed source→tier
// lookup table. Sources absent from the table default to lifestyle.
type Builder struct {
	tiers  map[string]Tier
	logger *slog.Logger
}

// NewBuilder creates a corpus builder. The tiers map keys must be
// lowercase source names (see ParseTierTable).
func NewBuilder(tiers map[string]Tier, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		tiers:  tiers,
		logger: logger.With("component", "corpus"),
	}
}

// TierOf returns the tier for a source name.
func (b *Builder) TierOf(source string) Tier {
	if tier, ok := b.tiers[strings.ToLower(source)]; ok {
		return tier
	}
	return TierLifestyle
}

// Build filters items to the run window, collapses near-duplicates, and
// returns the tier-ordered corpus. Output ordering is a strict total
// order by (tier, source name, receipt time) regardless of input order.
func (b *Builder) Build(items []*extract.Item, since time.Time) *Corpus {
	// Window filter. Items with an unparsable (zero) receipt time are
	// kept: the mailbox query already bounded the fetch, and a mangled
	// Date header should not silently discard content.
	var windowed []*extract.Item
	for _, item := range items {
		if !item.Received.IsZero() && !item.Received.After(since) {
			b.logger.Debug("item outside window, dropped",
				"source", item.Source,
				"received", item.Received,
			)
			continue
		}
		windowed = append(windowed, item)
	}

	kept := b.dedupe(windowed)

	// Group by source.
	bySource := make(map[string][]*extract.Item)
	for _, item := range kept {
		bySource[item.Source] = append(bySource[item.Source], item)
	}

	corpus := &Corpus{}
	for name, sourceItems := range bySource {
		sort.SliceStable(sourceItems, func(i, j int) bool {
			a, z := sourceItems[i], sourceItems[j]
			if !a.Received.Equal(z.Received) {
				// Zero times sort last.
				if a.Received.IsZero() || z.Received.IsZero() {
					return z.Received.IsZero()
				}
				return a.Received.Before(z.Received)
			}
			return a.Subject < z.Subject
		})
		corpus.Sources = append(corpus.Sources, Source{
			Name:  name,
			Tier:  b.TierOf(name),
			Items: sourceItems,
		})
	}

	sort.SliceStable(corpus.Sources, func(i, j int) bool {
		a, z := corpus.Sources[i], corpus.Sources[j]
		if a.Tier != z.Tier {
			return a.Tier < z.Tier
		}
		return a.Name < z.Name
	})

	return corpus
}

// dedupe collapses items whose text overlap meets duplicateThreshold.
// The copy from the higher-tier source wins; on equal tiers the earliest
// received wins. Precedence is established by sorting before the greedy
// scan, so the result is independent of input order.
func (b *Builder) dedupe(items []*extract.Item) []*extract.Item {
	ordered := make([]*extract.Item, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, z := ordered[i], ordered[j]
		ta, tz := b.TierOf(a.Source), b.TierOf(z.Source)
		if ta != tz {
			return ta < tz
		}
		if !a.Received.Equal(z.Received) {
			if a.Received.IsZero() || z.Received.IsZero() {
				return z.Received.IsZero()
			}
			return a.Received.Before(z.Received)
		}
		if a.Source != z.Source {
			return a.Source < z.Source
		}
		return a.Subject < z.Subject
	})

	var kept []*extract.Item
	keptTokens := make([]map[string]struct{}, 0, len(ordered))

	for _, item := range ordered {
		toks := tokenSet(item.Text)
		dup := false
		for i, prev := range keptTokens {
			if overlap(toks, prev) >= duplicateThreshold {
				b.logger.Info("duplicate story collapsed",
					"dropped_source", item.Source,
					"kept_source", kept[i].Source,
					"subject", item.Subject,
				)
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, item)
			keptTokens = append(keptTokens, toks)
		}
	}
	return kept
}

// tokenSet lowercases the text and returns its set of word tokens.
// Short tokens carry no story identity and are skipped.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if len(f) < 3 {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// overlap returns the Jaccard similarity of two token sets.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	common := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			common++
		}
	}
	union := len(a) + len(b) - common
	return float64(common) / float64(union)
}
