// Package session drives one translation session: language selection,
// card-by-card translation and completion, with progress autosaved to the
// cache.
package session

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/internal/keyset"
	"github.com/MimeLyc/yaml-translator/internal/yamlout"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

type Phase string

const (
	PhaseSelecting   Phase = "language"
	PhaseTranslating Phase = "translating"
	PhaseComplete    Phase = "complete"
)

const DefaultSourceLanguage = "en"

type Filter struct {
	Search           string `json:"search"`
	UntranslatedOnly bool   `json:"untranslated_only"`
	TranslatedOnly   bool   `json:"translated_only"`
}

func (f Filter) Validate() error {
	if f.UntranslatedOnly && f.TranslatedOnly {
		return apperr.New(apperr.ErrValidation, "untranslated-only and translated-only filters are mutually exclusive")
	}
	return nil
}

type Option func(*Session)

// WithSourceLanguage sets the language of the canonical source file.
func WithSourceLanguage(lang string) Option {
	return func(s *Session) {
		if lang = strings.TrimSpace(lang); lang != "" {
			s.sourceLang = lang
		}
	}
}

// WithExistingLoader loads pre-existing target translations from a different
// loader than the source file.
func WithExistingLoader(l keyset.Loader) Option {
	return func(s *Session) {
		if l != nil {
			s.existingLoader = l
		}
	}
}

// Session is safe for concurrent use; every operation is serialized.
type Session struct {
	loader         keyset.Loader
	existingLoader keyset.Loader
	cache          Cache
	sourceLang     string
	saver          *autosaver

	mu           sync.Mutex
	generation   uint64
	phase        Phase
	lang         string
	source       keyset.Mapping
	existing     keyset.Mapping
	translations map[string]string
	cursor       int
	filter       Filter
	resumed      bool
}

func New(loader keyset.Loader, c Cache, opts ...Option) *Session {
	s := &Session{
		loader:         loader,
		existingLoader: loader,
		cache:          c,
		sourceLang:     DefaultSourceLanguage,
		phase:          PhaseSelecting,
		translations:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.saver = newAutosaver(c)
	return s
}

// StartTranslation loads the source file and any existing translations for
// lang, resumes cached progress when it still matches the source keys, and
// moves to the translating phase. On failure the session stays in selection.
func (s *Session) StartTranslation(ctx context.Context, lang string) error {
	lang = strings.TrimSpace(lang)
	if _, err := language.Parse(lang); err != nil || lang == "" {
		return apperr.Newf(apperr.ErrValidation, "invalid language code %q", lang)
	}

	s.mu.Lock()
	if s.phase != PhaseSelecting {
		phase := s.phase
		s.mu.Unlock()
		return apperr.Newf(apperr.ErrValidation, "cannot start a translation while in phase %s", phase)
	}
	gen := s.generation
	s.mu.Unlock()

	var source, existing keyset.Mapping
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.loader.Load(gctx, s.sourceLang)
		if err != nil {
			return err
		}
		source = m
		return nil
	})
	g.Go(func() error {
		m, err := s.existingLoader.Load(gctx, lang)
		if err != nil {
			log.Debug("No existing %s translations, starting fresh: %v", lang, err)
			m = keyset.NewMapping()
		}
		existing = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return apperr.NewWithCause(apperr.ErrLoad, "failed to load source file", err).
			WithContext("language", s.sourceLang)
	}

	record, cached := s.cache.Load(ctx, lang, source.Keys)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.phase != PhaseSelecting {
		return apperr.New(apperr.ErrLoad, "session changed while loading, result discarded").
			WithContext("language", lang)
	}

	s.generation++
	s.lang = lang
	s.source = source
	s.existing = existing
	s.filter = Filter{}
	s.translations = make(map[string]string)
	s.cursor = 0
	s.resumed = false
	if cached && len(record.Translations) > 0 {
		for k, v := range record.Translations {
			s.translations[k] = v
		}
		s.cursor = clamp(record.Cursor, source.Len())
		s.resumed = true
		log.Info("Resumed %s session with %d translations at #%d", lang, len(s.translations), s.cursor)
	}
	s.phase = PhaseTranslating
	log.Info("Started %s session: %d source keys, %d existing translations", lang, source.Len(), existing.Len())
	return nil
}

// FilteredKeys returns the source keys visible under the current filter, in
// source order.
func (s *Session) FilteredKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filteredKeysLocked()
}

func (s *Session) filteredKeysLocked() []string {
	term := strings.ToLower(strings.TrimSpace(s.filter.Search))
	ret := make([]string, 0, len(s.source.Keys))
	for _, key := range s.source.Keys {
		if term != "" &&
			!strings.Contains(strings.ToLower(key), term) &&
			!strings.Contains(strings.ToLower(s.source.Values[key]), term) {
			continue
		}
		translated := s.translations[key] != ""
		if s.filter.UntranslatedOnly && translated {
			continue
		}
		if s.filter.TranslatedOnly && !translated {
			continue
		}
		ret = append(ret, key)
	}
	return ret
}

// SetFilter replaces the filter and clamps the cursor into the new list.
func (s *Session) SetFilter(f Filter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requirePhaseLocked(PhaseTranslating); err != nil {
		return err
	}
	s.filter = f
	prev := s.cursor
	s.cursor = clamp(s.cursor, len(s.filteredKeysLocked()))
	if prev != s.cursor {
		s.autosaveLocked()
	}
	return nil
}

// SaveCurrent stores text for the current key and advances. Blank text falls
// back to the existing translation, then to the source text, so a saved key
// is never left unset.
func (s *Session) SaveCurrent(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requirePhaseLocked(PhaseTranslating); err != nil {
		return err
	}
	keys := s.filteredKeysLocked()
	if len(keys) == 0 {
		return apperr.New(apperr.ErrValidation, "no key selected")
	}
	key := keys[s.cursor]

	value := strings.TrimSpace(text)
	if value == "" {
		if existing, ok := s.existing.Get(key); ok && existing != "" {
			value = existing
		} else {
			value = s.source.Values[key]
		}
	}
	s.translations[key] = value

	after := s.filteredKeysLocked()
	if s.cursor < len(after) && after[s.cursor] == key {
		s.advanceLocked(after)
	} else {
		// the saved key left the filtered list; the cursor already points at the next one
		s.cursor = clamp(s.cursor, len(after))
	}
	s.autosaveLocked()
	return nil
}

// Advance moves to the next filtered key. Past the last key of the full list
// the session completes; past the end of a narrowed list it stays put.
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requirePhaseLocked(PhaseTranslating); err != nil {
		return err
	}
	s.advanceLocked(s.filteredKeysLocked())
	s.autosaveLocked()
	return nil
}

func (s *Session) advanceLocked(keys []string) {
	if s.cursor < len(keys)-1 {
		s.cursor++
		return
	}
	if len(keys) == s.source.Len() {
		s.phase = PhaseComplete
		log.Info("Completed %s session with %d translations", s.lang, len(s.translations))
	}
}

func (s *Session) GoBack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requirePhaseLocked(PhaseTranslating); err != nil {
		return err
	}
	if s.cursor > 0 {
		s.cursor--
		s.autosaveLocked()
	}
	return nil
}

// Restart abandons the session and clears every cached session.
func (s *Session) Restart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saver.discard()
	s.cache.ClearAll(ctx)
	log.Info("Restarted session (was %s), cache cleared", s.lang)
	s.resetLocked()
}

// StartNew returns to language selection keeping persisted progress.
func (s *Session) StartNew() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.generation++
	s.phase = PhaseSelecting
	s.lang = ""
	s.source = keyset.Mapping{}
	s.existing = keyset.Mapping{}
	s.translations = make(map[string]string)
	s.cursor = 0
	s.filter = Filter{}
	s.resumed = false
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Translations returns a copy of the working translations.
func (s *Session) Translations() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.translations)
}

// Serialize renders the working translations in source key order.
func (s *Session) Serialize() (lang string, content string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang, yamlout.Serialize(s.translations, s.source.Keys), len(s.translations)
}

// Flush waits for pending autosaves to reach the cache.
func (s *Session) Flush() {
	s.saver.flush()
}

// Close flushes pending autosaves and stops the background writer.
func (s *Session) Close() {
	s.saver.close()
}

func (s *Session) requirePhaseLocked(want Phase) error {
	if s.phase != want {
		return apperr.Newf(apperr.ErrValidation, "operation requires phase %s, session is in %s", want, s.phase)
	}
	return nil
}

func (s *Session) autosaveLocked() {
	if s.lang == "" || len(s.translations) == 0 {
		return
	}
	s.saver.schedule(snapshot{
		lang:         s.lang,
		translations: copyMap(s.translations),
		cursor:       s.cursor,
		keys:         s.source.Keys,
	})
}

func clamp(cursor, n int) int {
	if n <= 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}

func copyMap(m map[string]string) map[string]string {
	ret := make(map[string]string, len(m))
	for k, v := range m {
		ret[k] = v
	}
	return ret
}
