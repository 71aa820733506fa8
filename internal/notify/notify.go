// Package notify renders the short user-facing messages shown after an
// action succeeds or fails.
package notify

import (
	"embed"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

//go:embed active.*.toml
var localeFS embed.FS

type Kind string

const (
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
	KindError   Kind = "error"
)

// Message ids. Each has a <id>Title and <id>Description entry in the catalogs.
const (
	LoadFailed      = "LoadFailed"
	LoadSucceeded   = "LoadSucceeded"
	ExistingFound   = "ExistingFound"
	ResumeAvailable = "ResumeAvailable"
	DownloadFailed  = "DownloadFailed"
	SendQueued      = "SendQueued"
	SendSucceeded   = "SendSucceeded"
	SendFailed      = "SendFailed"
	InvalidInput    = "InvalidInput"
	CacheCleared    = "CacheCleared"
	Unexpected      = "Unexpected"
)

type Notification struct {
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Notifier wraps a go-i18n bundle loaded from the embedded catalogs.
type Notifier struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
}

func New(defaultLocale string) *Notifier {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.English
	}
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range []string{"active.en.toml", "active.hi.toml"} {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			log.Error("notify: failed to load %s: %v", file, err)
		}
	}
	return &Notifier{bundle: bundle, defaultLanguage: tag}
}

// Languages lists the locales with a catalog.
func (n *Notifier) Languages() []string {
	tags := n.bundle.LanguageTags()
	ret := make([]string, 0, len(tags))
	for _, tag := range tags {
		ret = append(ret, tag.String())
	}
	return ret
}

// Notify renders message id for locale, falling back to the default locale
// and then to English.
func (n *Notifier) Notify(locale string, kind Kind, id string, data map[string]any) Notification {
	return Notification{
		Kind:        kind,
		Title:       n.localize(locale, id+"Title", data),
		Description: n.localize(locale, id+"Description", data),
	}
}

// ForError picks the message for err's type and passes its text as Detail.
func (n *Notifier) ForError(locale string, err error) Notification {
	if err == nil {
		return Notification{}
	}
	data := map[string]any{"Detail": apperr.Message(err)}
	t, _ := apperr.TypeOf(err)
	switch t {
	case apperr.ErrLoad, apperr.ErrNotFound, apperr.ErrParse, apperr.ErrEmpty:
		return n.Notify(locale, KindError, LoadFailed, data)
	case apperr.ErrDelivery:
		return n.Notify(locale, KindError, SendFailed, data)
	case apperr.ErrValidation:
		return n.Notify(locale, KindError, InvalidInput, data)
	default:
		return n.Notify(locale, KindError, Unexpected, data)
	}
}

func (n *Notifier) localize(locale, id string, data map[string]any) string {
	languages := []string{}
	if locale != "" {
		languages = append(languages, locale)
	}
	languages = append(languages, n.defaultLanguage.String())

	localizer := i18n.NewLocalizer(n.bundle, languages...)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		log.Debug("notify: localize failed (id=%s, locales=%v): %v", id, languages, err)
		return id
	}
	return msg
}
