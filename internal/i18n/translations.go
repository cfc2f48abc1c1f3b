// Package i18n renders user-facing scan and admin messages from the embedded
// message catalogs.
package i18n

import (
	"embed"
	"io/fs"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed active.*.toml
var catalogs embed.FS

// Translator owns the message catalogs and negotiates a language per caller.
type Translator struct {
	bundle   *i18n.Bundle
	fallback language.Tag
	tags     []language.Tag
	matcher  language.Matcher
}

// NewTranslator loads every embedded catalog. defaultLocale answers callers
// whose preferences match nothing; an unparseable value means English.
func NewTranslator(defaultLocale string) *Translator {
	fallback, err := language.Parse(defaultLocale)
	if err != nil {
		fallback = language.English
	}
	bundle := i18n.NewBundle(fallback)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, _ := fs.Glob(catalogs, "active.*.toml")
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(catalogs, file); err != nil {
			slog.Warn("i18n: skipping catalog", "file", file, "error", err)
		}
	}

	// The matcher answers with its first tag when nothing matches.
	supported := []language.Tag{fallback}
	for _, tag := range bundle.LanguageTags() {
		if tag != fallback {
			supported = append(supported, tag)
		}
	}
	return &Translator{bundle: bundle, fallback: fallback, tags: supported, matcher: language.NewMatcher(supported)}
}

// For negotiates acceptLanguage (an Accept-Language header value or a bare
// locale) against the loaded catalogs. Resolve once per request and reuse.
func (t *Translator) For(acceptLanguage string) *Localizer {
	tag := t.negotiate(acceptLanguage)
	return &Localizer{
		tag: tag,
		loc: i18n.NewLocalizer(t.bundle, tag.String(), t.fallback.String()),
	}
}

func (t *Translator) negotiate(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return t.fallback
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return t.fallback
	}
	_, idx, conf := t.matcher.Match(prefs...)
	if conf == language.No {
		return t.fallback
	}
	if idx < 0 || idx >= len(t.tags) {
		return t.fallback
	}
	return t.tags[idx]
}

// T renders key for a one-off caller. Prefer For when rendering several keys.
func (t *Translator) T(acceptLanguage, key string, data map[string]any) string {
	return t.For(acceptLanguage).T(key, data)
}

// Localizer renders messages in one negotiated language.
type Localizer struct {
	tag language.Tag
	loc *i18n.Localizer
}

// Language is the negotiated tag, suitable for a Content-Language header.
func (l *Localizer) Language() string {
	return l.tag.String()
}

// T renders key with data. Unknown keys come back unchanged.
func (l *Localizer) T(key string, data map[string]any) string {
	if key == "" {
		return ""
	}
	msg, err := l.loc.Localize(&i18n.LocalizeConfig{MessageID: key, TemplateData: data})
	if err != nil {
		slog.Debug("i18n: localize failed", "key", key, "language", l.tag.String(), "error", err)
		return key
	}
	return msg
}
