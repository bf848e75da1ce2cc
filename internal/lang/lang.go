// Package lang lists the languages a learning plan can pair and derives
// display names for language pairs.
package lang

import (
	"fmt"
	"strings"
)

// Language describes one supported language.
type Language struct {
	Code       string
	Name       string
	NativeName string
}

// Supported is the fixed set of languages, in display order.
var Supported = []Language{
	{Code: "en", Name: "English", NativeName: "English"},
	{Code: "tr", Name: "Turkish", NativeName: "Türkçe"},
	{Code: "de", Name: "German", NativeName: "Deutsch"},
	{Code: "fr", Name: "French", NativeName: "Français"},
	{Code: "it", Name: "Italian", NativeName: "Italiano"},
	{Code: "es", Name: "Spanish", NativeName: "Español"},
}

// Lookup returns the language with the given code.
func Lookup(code string) (Language, bool) {
	for _, l := range Supported {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// IsSupported reports whether code names a supported language.
func IsSupported(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// ValidatePair checks that source and target are supported and differ.
func ValidatePair(source, target string) error {
	if !IsSupported(source) {
		return fmt.Errorf("unsupported source language %q", source)
	}
	if !IsSupported(target) {
		return fmt.Errorf("unsupported target language %q", target)
	}
	if source == target {
		return fmt.Errorf("source and target language must differ (both %q)", source)
	}
	return nil
}

// PlanName returns the default plan name for a pair, e.g. "Turkish from English".
// Unknown codes fall back to "EN → TR".
func PlanName(source, target string) string {
	s, okS := Lookup(source)
	t, okT := Lookup(target)
	if !okS || !okT {
		return fmt.Sprintf("%s → %s", strings.ToUpper(source), strings.ToUpper(target))
	}
	return fmt.Sprintf("%s from %s", t.Name, s.Name)
}

// Targets returns every language that can be learned from source.
func Targets(source string) []Language {
	var out []Language
	for _, l := range Supported {
		if l.Code != source {
			out = append(out, l)
		}
	}
	return out
}
