// Package i18n matches request locales against the supported languages and
// localizes the fixed messages the API returns.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// Supported locales.
const (
	English    = "en"
	Indonesian = "id"
)

var (
	supported = []language.Tag{language.English, language.Indonesian}
	codes     = []string{English, Indonesian}
	matcher   = language.NewMatcher(supported)
)

// Message keys.
const (
	MsgJobCancelled = "job.cancelled"
	MsgJobNotFound  = "job.not_found"
)

var catalog = map[string]map[string]string{
	English: {
		MsgJobCancelled: "Cancelled by user",
		MsgJobNotFound:  "Job not found",
	},
	Indonesian: {
		MsgJobCancelled: "Dibatalkan oleh pengguna",
		MsgJobNotFound:  "Pekerjaan tidak ditemukan",
	},
}

// Normalize maps a single BCP 47 tag to a supported locale, defaulting to English.
func Normalize(raw string) string {
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return English
	}
	return match(tag)
}

// MatchAcceptLanguage picks the best supported locale for an
// Accept-Language header. It returns "" when the header names nothing usable.
func MatchAcceptLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	return match(tags...)
}

func match(tags ...language.Tag) string {
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No || idx < 0 || idx >= len(codes) {
		return English
	}
	return codes[idx]
}

// Translate returns the message for key in locale, falling back to
// English and then to the key itself.
func Translate(locale, key string) string {
	if msg, ok := catalog[Normalize(locale)][key]; ok {
		return msg
	}
	if msg, ok := catalog[English][key]; ok {
		return msg
	}
	return key
}

// Localize translates text when it is one of the catalog's English
// messages and returns it unchanged otherwise.
func Localize(locale, text string) string {
	for key, msg := range catalog[English] {
		if msg == text {
			return Translate(locale, key)
		}
	}
	return text
}
