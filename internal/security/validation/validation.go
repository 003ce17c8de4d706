// Package validation screens free-text input for injection patterns and
// offers rule-based field validation. Pattern matching here is defense in
// depth, not a substitute for parameterized queries at the store layer.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var sqlPatterns = []*regexp.Regexp{
	// SQL keywords as whole words
	regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|union|alter|create)\b`),
	// OR/AND flanked by numeric comparisons: "1 OR 1=1"
	regexp.MustCompile(`(?i)\b(or|and)\b\s*\d+\s*=\s*\d+`),
	// quote followed by OR/AND
	regexp.MustCompile(`(?i)['"]\s*(or|and)\b`),
	// comment markers
	regexp.MustCompile(`--|#|/\*[\s\S]*?\*/`),
}

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script\b`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?i)<(iframe|embed|object)\b`),
}

var (
	htmlTag = regexp.MustCompile(`<[^>]*>`)
	// ampersand optionally followed by an already-escaped entity tail
	ampEntity = regexp.MustCompile(`&(amp;|lt;|gt;|quot;|#39;)?`)
)

// HasSQLInjection reports whether s matches a known SQL injection pattern.
func HasSQLInjection(s string) bool {
	for _, p := range sqlPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// HasXSS reports whether s matches a known cross-site scripting pattern.
func HasXSS(s string) bool {
	for _, p := range xssPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// Sanitize strips all HTML tags, then entity-escapes the five characters
// < > & " '. Already-escaped entities are left alone, so re-sanitizing
// stable output is a no-op.
func Sanitize(s string) string {
	s = htmlTag.ReplaceAllString(s, "")
	s = ampEntity.ReplaceAllStringFunc(s, func(match string) string {
		if match == "&" {
			return "&amp;"
		}
		return match
	})
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}

// Rule constrains one field of a validated map.
type Rule struct {
	Required  bool
	MaxLength int
	Pattern   *regexp.Regexp
}

// Result accumulates validation outcomes. Validation failures are data,
// never errors: the caller decides what to do with an invalid input.
type Result struct {
	Valid  bool
	Errors []string
}

// ValidateMap checks each rule key against values. String values are also
// screened for SQL injection and XSS patterns.
func ValidateMap(values map[string]string, rules map[string]Rule) Result {
	var errs []string

	for field, rule := range rules {
		value, present := values[field]

		if rule.Required && (!present || value == "") {
			errs = append(errs, fmt.Sprintf("le champ %s est requis", field))
			continue
		}
		if !present || value == "" {
			continue
		}

		if HasSQLInjection(value) {
			errs = append(errs, fmt.Sprintf("le champ %s contient des caractères interdits", field))
		}
		if HasXSS(value) {
			errs = append(errs, fmt.Sprintf("le champ %s contient du contenu potentiellement dangereux", field))
		}
		if rule.MaxLength > 0 && len(value) > rule.MaxLength {
			errs = append(errs, fmt.Sprintf("le champ %s dépasse la longueur maximale de %d caractères", field, rule.MaxLength))
		}
		if rule.Pattern != nil && !rule.Pattern.MatchString(value) {
			errs = append(errs, fmt.Sprintf("le champ %s a un format invalide", field))
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}
