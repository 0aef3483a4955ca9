package providers

import (
	"sort"
	"strings"
)

// LanguagePreference orders caption languages: English first, then a
// configured secondary language, then whatever is available.
type LanguagePreference struct {
	Preferred []string
}

func NewLanguagePreference(secondary string, extra ...string) LanguagePreference {
	prefs := []string{"en"}
	if s := normalizeLang(secondary); s != "" && s != "en" {
		prefs = append(prefs, s)
	}
	for _, e := range extra {
		if e = normalizeLang(e); e != "" {
			prefs = append(prefs, e)
		}
	}
	return LanguagePreference{Preferred: prefs}
}

// Pick chooses a language from available. Exact matches win over regional
// variants ("en" before "en-US"); with no preferred match the first
// available code in sorted order is used.
func (p LanguagePreference) Pick(available []string) (string, bool) {
	if len(available) == 0 {
		return "", false
	}
	sorted := append([]string(nil), available...)
	sort.Strings(sorted)

	for _, want := range p.Preferred {
		for _, code := range sorted {
			if normalizeLang(code) == want {
				return code, true
			}
		}
		for _, code := range sorted {
			if baseLang(code) == want {
				return code, true
			}
		}
	}
	return sorted[0], true
}

func normalizeLang(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func baseLang(code string) string {
	code = normalizeLang(code)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		return code[:i]
	}
	return code
}

// whisperLanguages maps the language names speech-to-text providers report
// to the codes the rest of the system uses.
var whisperLanguages = map[string]string{
	"english":    "en",
	"german":     "de",
	"french":     "fr",
	"spanish":    "es",
	"italian":    "it",
	"portuguese": "pt",
	"dutch":      "nl",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
}

func languageCode(name string) string {
	n := normalizeLang(name)
	if code, ok := whisperLanguages[n]; ok {
		return code
	}
	return n
}
