package reconcile

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
)

// knownAliases maps a canonical product key to the spellings seen on claims and receipts.
// Keys and aliases are already normalized.
var knownAliases = map[string][]string{
	"chatgpt":    {"chatgpt", "chatgptplus", "chatgptpro", "chatgptteam", "openai", "openaillc", "openaichatgpt", "gpt4", "gpt"},
	"claude":     {"claude", "claudeai", "claudepro", "claudemax", "anthropic"},
	"cursor":     {"cursor", "cursorai", "cursorpro", "anysphere"},
	"copilot":    {"copilot", "githubcopilot", "github", "githubinc"},
	"gemini":     {"gemini", "geminiadvanced", "googlegemini", "googleone", "googleoneai"},
	"midjourney": {"midjourney", "mj"},
	"perplexity": {"perplexity", "perplexityai", "perplexitypro"},
	"windsurf":   {"windsurf", "codeium"},
	"notionai":   {"notionai", "notion"},
}

// exactOnly are vendor names that also sell other products ("OpenAI API",
// "GitHub Actions"); they resolve only as the whole name, never as a prefix
var exactOnly = map[string]bool{"openai": true, "github": true}

var aliasIndex = buildAliasIndex()

// aliasKeys are the prefix scan candidates, longest first so the most specific alias wins
var aliasKeys []string

func buildAliasIndex() map[string]string {
	idx := make(map[string]string)
	for canonical, aliases := range knownAliases {
		for _, a := range aliases {
			idx[a] = canonical
			if !exactOnly[a] {
				aliasKeys = append(aliasKeys, a)
			}
		}
	}
	sort.Slice(aliasKeys, func(i, j int) bool {
		if len(aliasKeys[i]) != len(aliasKeys[j]) {
			return len(aliasKeys[i]) > len(aliasKeys[j])
		}
		return aliasKeys[i] < aliasKeys[j]
	})
	return idx
}

// normalizeKey lower-cases the name and drops everything but letters and digits
func normalizeKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalTool resolves a free-text tool name to a comparison key.
// Known products collapse to one key, unknown names fall back to their normalized form.
func CanonicalTool(name string) string {
	key := normalizeKey(name)
	if key == "" {
		return ""
	}
	if c, ok := aliasIndex[key]; ok {
		return c
	}
	for _, a := range aliasKeys {
		if len(a) >= 3 && strings.HasPrefix(key, a) {
			return aliasIndex[a]
		}
	}
	return key
}

// SameTool reports whether two tool names refer to the same product
func SameTool(a, b string) bool {
	ca, cb := CanonicalTool(a), CanonicalTool(b)
	return ca != "" && ca == cb
}

// AliasPairer pairs items by canonical tool name without calling an oracle.
// Among receipts for the same tool, one whose amount and currency agree is preferred.
type AliasPairer struct {
	policy Policy
}

// NewAliasPairer creates a pairer using the given tolerance policy
func NewAliasPairer(policy Policy) *AliasPairer {
	return &AliasPairer{policy: policy}
}

// Pair implements Pairer
func (p *AliasPairer) Pair(_ context.Context, claimed, observed []entity.ExpenseLineItem) (Pairing, error) {
	used := make([]bool, len(observed))
	var pairs []Pair

	for i, c := range claimed {
		best := -1
		for j, o := range observed {
			if used[j] || !SameTool(c.ToolName, o.ToolName) {
				continue
			}
			if best < 0 {
				best = j
			}
			if c.Currency == o.Currency && p.policy.amountsAgree(c, o) {
				best = j
				break
			}
		}
		if best >= 0 {
			used[best] = true
			pairs = append(pairs, Pair{Claimed: i, Observed: best, SameTool: true})
		}
	}

	return Pairing{Pairs: pairs}, nil
}

var _ Pairer = (*AliasPairer)(nil)
