// Package template substitutes recipient values into outreach email
// templates. Placeholders are literal tokens, not a template language:
// several legacy spellings of the same field remain in circulation, so the
// renderer applies an explicit, ordered list of (token, value) rules and
// leaves anything it does not recognize untouched.
package template

import "strings"

// Values holds the per-recipient substitution data.
type Values struct {
	Name    string
	Company string
	Role    string
	Link    string
}

const (
	linkBlockOpen  = "{{#if link}}"
	linkBlockClose = "{{/if}}"
)

// Render substitutes v into tmpl. The link-gated block is resolved first,
// then the token rules run in a single left-to-right pass: substituted
// values are never rescanned, so a value that happens to contain a
// placeholder spelling stays literal. Unmatched placeholders are left as
// literal text.
func Render(tmpl string, v Values) string {
	tmpl = renderLinkBlocks(tmpl, v.Link)

	rs := rules(v)
	pairs := make([]string, 0, 2*len(rs))
	for _, r := range rs {
		pairs = append(pairs, r.token, r.value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

type rule struct {
	token string
	value string
}

// rules lists every supported placeholder spelling. Order is fixed: the
// exact spellings used by current templates come first, the
// backward-compatible variants after, and the earlier rule wins when two
// could match at the same position.
func rules(v Values) []rule {
	return []rule{
		{"${firstName}", v.Name},
		{"${Role}", v.Role},
		{"${Company}", v.Company},
		{"${name}", v.Name},
		{"${Name}", v.Name},
		{"${company}", v.Company},
		{"${role}", v.Role},
		{"${link}", v.Link},
		{"${Link}", v.Link},
		{"{{name}}", v.Name},
		{"{{company}}", v.Company},
		{"{{role}}", v.Role},
		{"{{link}}", v.Link},
	}
}

// renderLinkBlocks resolves every {{#if link}}...{{/if}} block: the inner
// content is kept when link is non-empty and the whole block is removed
// otherwise. An open marker without a matching close is left as literal
// text, consistent with the fail-open handling of unknown placeholders.
func renderLinkBlocks(s, link string) string {
	for {
		start := strings.Index(s, linkBlockOpen)
		if start < 0 {
			return s
		}
		rel := strings.Index(s[start+len(linkBlockOpen):], linkBlockClose)
		if rel < 0 {
			return s
		}
		innerStart := start + len(linkBlockOpen)
		end := innerStart + rel + len(linkBlockClose)

		if link == "" {
			s = s[:start] + s[end:]
		} else {
			s = s[:start] + s[innerStart:innerStart+rel] + s[end:]
		}
	}
}
