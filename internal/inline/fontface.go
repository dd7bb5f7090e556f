package inline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"

	"github.com/pureZjr/html-to-image/dom"
)

// FontResolver embeds every externally-sourced font reachable from the
// document's stylesheets.
type FontResolver struct {
	Engine  dom.Engine
	Inliner *Inliner
	Log     *slog.Logger
}

// ResolveAll scans all reachable stylesheets for @font-face rules whose src
// references external resources, inlines those references against each
// sheet's own base URL, and returns the newline-joined rule texts as one CSS
// block. Sheets whose rules cannot be read are skipped with a warning.
func (r *FontResolver) ResolveAll(ctx context.Context) (string, error) {
	sheets, err := r.Engine.StyleSheets(ctx)
	if err != nil {
		return "", fmt.Errorf("htmltoimage: enumerating stylesheets: %w", err)
	}

	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	var rules []string
	for _, sheet := range sheets {
		if sheet.Err != nil {
			log.Warn("htmltoimage: skipping unreadable stylesheet",
				"url", sheet.BaseURL, "error", sheet.Err)
			continue
		}
		parsed, err := parser.Parse(sheet.CSS)
		if err != nil {
			log.Warn("htmltoimage: skipping unparseable stylesheet",
				"url", sheet.BaseURL, "error", err)
			continue
		}
		for _, rule := range parsed.Rules {
			if !isWebFontRule(rule) {
				continue
			}
			text, err := r.Inliner.InlineAll(ctx, ruleText(rule), sheet.BaseURL)
			if err != nil {
				return "", err
			}
			rules = append(rules, text)
		}
	}

	return strings.Join(rules, "\n"), nil
}

// isWebFontRule reports whether rule is a @font-face rule whose src carries
// at least one non-embedded resource reference.
func isWebFontRule(rule *css.Rule) bool {
	if rule.Kind != css.AtRule || strings.ToLower(rule.Name) != "@font-face" {
		return false
	}
	for _, d := range rule.Declarations {
		if strings.EqualFold(d.Property, "src") {
			return len(ReadURLs(d.Value)) > 0
		}
	}
	return false
}

// ruleText serializes a @font-face rule as a single-line declaration block.
func ruleText(rule *css.Rule) string {
	var b strings.Builder
	b.WriteString(rule.Name)
	b.WriteString(" { ")
	for _, d := range rule.Declarations {
		b.WriteString(d.Property)
		b.WriteString(": ")
		b.WriteString(d.Value)
		if d.Important {
			b.WriteString(" !important")
		}
		b.WriteString("; ")
	}
	b.WriteString("}")
	return b.String()
}
