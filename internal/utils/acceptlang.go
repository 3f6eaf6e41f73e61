package utils

import (
	"strings"

	"golang.org/x/text/language"
)

// DetermineLocale picks the locale for a request: an explicit query value
// first, then the best Accept-Language match, then def. Regional tags
// ("zh-CN") match their supported base language ("zh").
func DetermineLocale(queryLang, acceptLang string, supported []string, def string) string {
	tags := make([]language.Tag, 0, len(supported))
	names := make([]string, 0, len(supported))
	for _, s := range supported {
		t, err := language.Parse(s)
		if err != nil {
			continue
		}
		tags = append(tags, t)
		names = append(names, strings.ToLower(s))
	}
	if len(tags) == 0 {
		return "en"
	}
	matcher := language.NewMatcher(tags)
	match := func(wanted ...language.Tag) (string, bool) {
		if len(wanted) == 0 {
			return "", false
		}
		_, idx, conf := matcher.Match(wanted...)
		if conf == language.No {
			return "", false
		}
		return names[idx], true
	}
	parse := func(lang string) []language.Tag {
		t, err := language.Parse(strings.TrimSpace(lang))
		if lang == "" || err != nil {
			return nil
		}
		return []language.Tag{t}
	}

	if v, ok := match(parse(queryLang)...); ok {
		return v
	}
	// Zero-weight entries are dropped by the parser.
	if wanted, _, err := language.ParseAcceptLanguage(acceptLang); err == nil {
		if v, ok := match(wanted...); ok {
			return v
		}
	}
	if v, ok := match(parse(def)...); ok {
		return v
	}
	return names[0]
}
