// Package cache persists in-progress translation sessions per language and
// drops them when they expire or no longer match the source key set.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

const (
	SessionKeyPrefix   = "yaml_translations_"
	CurrentLanguageKey = "current_language_key"
	DefaultTTL         = 7 * 24 * time.Hour

	fingerprintSeparator = "\x1f"
)

// Session is the persisted snapshot of one language's progress.
type Session struct {
	Translations map[string]string `json:"translations"`
	Cursor       int               `json:"index"`
	LanguageCode string            `json:"language"`
	SavedAt      int64             `json:"timestamp"`
	Fingerprint  string            `json:"fingerprint,omitempty"`
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// Store never returns medium failures to callers; they are logged and the
// operation degrades to "nothing cached".
type Store struct {
	medium Medium
	now    func() time.Time
	ttl    time.Duration
}

func NewStore(medium Medium, opts ...Option) *Store {
	if medium == nil {
		medium = NewMemoryMedium()
	}
	s := &Store{
		medium: medium,
		now:    time.Now,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fingerprint is order-sensitive: the same keys in another order differ.
func Fingerprint(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", md5.Sum([]byte(strings.Join(keys, fingerprintSeparator))))
}

func sessionKey(lang string) string {
	return SessionKeyPrefix + lang
}

// Save writes the snapshot for lang and points the current-language slot at it.
func (s *Store) Save(ctx context.Context, lang string, translations map[string]string, cursor int, keys []string) {
	record := Session{
		Translations: translations,
		Cursor:       cursor,
		LanguageCode: lang,
		SavedAt:      s.now().UnixMilli(),
		Fingerprint:  Fingerprint(keys),
	}
	if record.Translations == nil {
		record.Translations = map[string]string{}
	}
	data, err := json.Marshal(record)
	if err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "encode cached session", err).WithContext("language", lang))
		return
	}
	if err := s.medium.Set(ctx, sessionKey(lang), string(data)); err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "save cached session", err).WithContext("language", lang))
		return
	}
	if err := s.medium.Set(ctx, CurrentLanguageKey, lang); err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "save current language", err).WithContext("language", lang))
	}
}

// Load returns the cached session for lang. Expired, unreadable or
// key-set-mismatched records are deleted and reported as absent. When keys is
// empty the fingerprint is not checked.
func (s *Store) Load(ctx context.Context, lang string, keys []string) (*Session, bool) {
	raw, ok, err := s.medium.Get(ctx, sessionKey(lang))
	if err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "read cached session", err).WithContext("language", lang))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var record Session
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "decode cached session", err).WithContext("language", lang))
		s.Clear(ctx, lang)
		return nil, false
	}

	age := s.now().Sub(time.UnixMilli(record.SavedAt))
	if age > s.ttl {
		log.Info("Cached session for %s expired (%s old), dropping", lang, age.Round(time.Minute))
		s.Clear(ctx, lang)
		return nil, false
	}

	if len(keys) > 0 && Fingerprint(keys) != record.Fingerprint {
		log.Info("Source keys for %s changed since last save, dropping cached session", lang)
		s.Clear(ctx, lang)
		return nil, false
	}

	if record.Translations == nil {
		record.Translations = map[string]string{}
	}
	if record.LanguageCode == "" {
		record.LanguageCode = lang
	}
	return &record, true
}

// Clear deletes lang's record, and the current-language slot when it names lang.
func (s *Store) Clear(ctx context.Context, lang string) {
	if err := s.medium.Delete(ctx, sessionKey(lang)); err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "delete cached session", err).WithContext("language", lang))
	}
	current, ok := s.CurrentLanguage(ctx)
	if ok && current == lang {
		if err := s.medium.Delete(ctx, CurrentLanguageKey); err != nil {
			s.report(apperr.NewWithCause(apperr.ErrCache, "delete current language", err))
		}
	}
}

// ClearSavedBefore clears lang's record unless it was saved after cutoff, and
// reports whether nothing newer remains.
func (s *Store) ClearSavedBefore(ctx context.Context, lang string, cutoff time.Time) bool {
	raw, ok, err := s.medium.Get(ctx, sessionKey(lang))
	if err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "read cached session", err).WithContext("language", lang))
		return false
	}
	if !ok {
		return true
	}
	var record Session
	if err := json.Unmarshal([]byte(raw), &record); err == nil && record.SavedAt > cutoff.UnixMilli() {
		log.Info("Keeping cached %s session: saved after %s", lang, cutoff.Format(time.DateTime))
		return false
	}
	s.Clear(ctx, lang)
	return true
}

func (s *Store) ClearAll(ctx context.Context) {
	keys, err := s.medium.Keys(ctx, SessionKeyPrefix)
	if err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "list cached sessions", err))
	}
	for _, key := range keys {
		if err := s.medium.Delete(ctx, key); err != nil {
			s.report(apperr.NewWithCause(apperr.ErrCache, "delete cached session", err).WithContext("key", key))
		}
	}
	if err := s.medium.Delete(ctx, CurrentLanguageKey); err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "delete current language", err))
	}
}

func (s *Store) CurrentLanguage(ctx context.Context) (string, bool) {
	lang, ok, err := s.medium.Get(ctx, CurrentLanguageKey)
	if err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "read current language", err))
		return "", false
	}
	if !ok || lang == "" {
		return "", false
	}
	return lang, true
}

// CachedLanguages lists languages with a stored record, sorted.
func (s *Store) CachedLanguages(ctx context.Context) []string {
	keys, err := s.medium.Keys(ctx, SessionKeyPrefix)
	if err != nil {
		s.report(apperr.NewWithCause(apperr.ErrCache, "list cached sessions", err))
		return []string{}
	}
	ret := make([]string, 0, len(keys))
	for _, key := range keys {
		if lang := strings.TrimPrefix(key, SessionKeyPrefix); lang != "" {
			ret = append(ret, lang)
		}
	}
	sort.Strings(ret)
	return ret
}

// Resumable returns the session the current-language slot points at, if it
// holds any translations.
func (s *Store) Resumable(ctx context.Context) (*Session, bool) {
	lang, ok := s.CurrentLanguage(ctx)
	if !ok {
		return nil, false
	}
	record, ok := s.Load(ctx, lang, nil)
	if !ok || len(record.Translations) == 0 {
		return nil, false
	}
	return record, true
}

func (s *Store) report(err *apperr.Error) {
	log.Warn("%v", err)
}
