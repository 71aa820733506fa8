package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/internal/cache"
	"github.com/MimeLyc/yaml-translator/internal/keyset"
)

type stubLoader struct {
	mu       sync.Mutex
	mappings map[string]keyset.Mapping
	errs     map[string]error
	gate     chan struct{}
	entered  chan struct{}
}

func (l *stubLoader) Load(ctx context.Context, lang string) (keyset.Mapping, error) {
	if l.entered != nil {
		select {
		case l.entered <- struct{}{}:
		default:
		}
	}
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return keyset.Mapping{}, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.errs[lang]; ok {
		return keyset.Mapping{}, err
	}
	m, ok := l.mappings[lang]
	if !ok {
		return keyset.Mapping{}, apperr.Newf(apperr.ErrNotFound, "no %s file", lang)
	}
	return m, nil
}

func mapping(pairs ...string) keyset.Mapping {
	m := keyset.NewMapping()
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

func newFixture(t *testing.T) (*Session, *stubLoader, *cache.Store) {
	t.Helper()
	loader := &stubLoader{
		mappings: map[string]keyset.Mapping{
			"en": mapping("start_1", "Hello", "start_2", "Play", "stop_1", "Goodbye"),
			"es": mapping("start_1", "Hola"),
		},
	}
	store := cache.NewStore(cache.NewMemoryMedium())
	s := New(loader, store)
	t.Cleanup(s.Close)
	return s, loader, store
}

func TestStartTranslation_LoadsAndTransitions(t *testing.T) {
	s, _, _ := newFixture(t)

	require.NoError(t, s.StartTranslation(context.Background(), "es"))

	v := s.View()
	assert.Equal(t, PhaseTranslating, v.Phase)
	assert.Equal(t, "es", v.Language)
	assert.Equal(t, "start_1", v.Key)
	assert.Equal(t, "Hello", v.Source)
	assert.Equal(t, "Hola", v.Existing)
	assert.False(t, v.Resumed)
	assert.Equal(t, 3, v.Stats.Total)
	assert.Equal(t, float64(33), v.Stats.PreTranslatedPercent)
}

func TestStartTranslation_SourceFailureStaysSelecting(t *testing.T) {
	s, loader, _ := newFixture(t)
	loader.errs = map[string]error{"en": apperr.New(apperr.ErrLoad, "HTTP error! status: 500")}

	err := s.StartTranslation(context.Background(), "es")
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrLoad))
	assert.Equal(t, PhaseSelecting, s.Phase())
}

func TestStartTranslation_MissingExistingIsNotAnError(t *testing.T) {
	s, _, _ := newFixture(t)

	require.NoError(t, s.StartTranslation(context.Background(), "fr"))
	assert.Empty(t, s.View().Existing)
}

func TestStartTranslation_RejectsInvalidCode(t *testing.T) {
	s, _, _ := newFixture(t)

	err := s.StartTranslation(context.Background(), "not a language!")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrValidation))
	assert.Equal(t, PhaseSelecting, s.Phase())
}

func TestStartTranslation_ResumesFromCache(t *testing.T) {
	s, _, store := newFixture(t)
	ctx := context.Background()
	store.Save(ctx, "es", map[string]string{"start_1": "Hola"}, 9, []string{"start_1", "start_2", "stop_1"})

	require.NoError(t, s.StartTranslation(ctx, "es"))

	v := s.View()
	assert.True(t, v.Resumed)
	assert.Equal(t, 2, v.Cursor, "cursor is clamped into the key list")
	assert.Equal(t, map[string]string{"start_1": "Hola"}, s.Translations())
}

func TestStartTranslation_IgnoresCacheForChangedKeys(t *testing.T) {
	s, _, store := newFixture(t)
	ctx := context.Background()
	store.Save(ctx, "es", map[string]string{"start_1": "Hola"}, 1, []string{"stop_1", "start_1", "start_2"})

	require.NoError(t, s.StartTranslation(ctx, "es"))
	assert.False(t, s.View().Resumed)
	assert.Empty(t, s.Translations())
	_, ok := store.Load(ctx, "es", nil)
	assert.False(t, ok)
}

func TestStartTranslation_StaleResultDiscardedAfterRestart(t *testing.T) {
	s, loader, _ := newFixture(t)
	loader.gate = make(chan struct{})
	loader.entered = make(chan struct{}, 2)

	errCh := make(chan error, 1)
	go func() { errCh <- s.StartTranslation(context.Background(), "es") }()
	<-loader.entered

	s.Restart(context.Background())
	close(loader.gate)

	err := <-errCh
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrLoad))
	assert.Equal(t, PhaseSelecting, s.Phase())
	assert.Empty(t, s.Language())
}

func TestSaveCurrent_ExistingWinsOverSource(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "es"))

	require.NoError(t, s.SaveCurrent("   "))

	assert.Equal(t, "Hola", s.Translations()["start_1"])
	assert.Equal(t, 1, s.Cursor())
}

func TestSaveCurrent_FallsBackToSource(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "fr"))

	require.NoError(t, s.SaveCurrent(""))
	assert.Equal(t, "Hello", s.Translations()["start_1"])
}

func TestSaveCurrent_TrimsInput(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "fr"))

	require.NoError(t, s.SaveCurrent("  Bonjour \n"))
	assert.Equal(t, "Bonjour", s.Translations()["start_1"])
}

func TestAdvance_UnfilteredEndCompletes(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "fr"))

	require.NoError(t, s.SaveCurrent("a"))
	require.NoError(t, s.SaveCurrent("b"))
	assert.Equal(t, PhaseTranslating, s.Phase())
	require.NoError(t, s.SaveCurrent("c"))
	assert.Equal(t, PhaseComplete, s.Phase())

	err := s.Advance()
	assert.True(t, apperr.IsErrorType(err, apperr.ErrValidation))
}

func TestAdvance_FilteredEndStaysPut(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "fr"))
	require.NoError(t, s.SetFilter(Filter{Search: "start"}))
	require.Equal(t, []string{"start_1", "start_2"}, s.FilteredKeys())

	require.NoError(t, s.Advance())
	require.NoError(t, s.Advance())
	assert.Equal(t, PhaseTranslating, s.Phase())
	assert.Equal(t, 1, s.Cursor())
}

func TestGoBack(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "fr"))

	require.NoError(t, s.GoBack())
	assert.Equal(t, 0, s.Cursor())

	require.NoError(t, s.Advance())
	require.NoError(t, s.GoBack())
	assert.Equal(t, 0, s.Cursor())
}

func TestFilter_SearchMatchesKeyAndSourceText(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "fr"))

	require.NoError(t, s.SetFilter(Filter{Search: "STOP"}))
	assert.Equal(t, []string{"stop_1"}, s.FilteredKeys())

	require.NoError(t, s.SetFilter(Filter{Search: "play"}))
	assert.Equal(t, []string{"start_2"}, s.FilteredKeys())
}

func TestFilter_StatusToggles(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "fr"))
	require.NoError(t, s.SaveCurrent("Bonjour"))

	require.NoError(t, s.SetFilter(Filter{TranslatedOnly: true}))
	assert.Equal(t, []string{"start_1"}, s.FilteredKeys())
	assert.Equal(t, 0, s.Cursor(), "cursor clamped into the narrowed list")

	require.NoError(t, s.SetFilter(Filter{UntranslatedOnly: true}))
	assert.Equal(t, []string{"start_2", "stop_1"}, s.FilteredKeys())

	err := s.SetFilter(Filter{UntranslatedOnly: true, TranslatedOnly: true})
	assert.True(t, apperr.IsErrorType(err, apperr.ErrValidation))
}

func TestSaveCurrent_UntranslatedFilterDoesNotSkipKeys(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "fr"))
	require.NoError(t, s.SetFilter(Filter{UntranslatedOnly: true}))

	require.NoError(t, s.SaveCurrent("Bonjour"))
	assert.Equal(t, "start_2", s.View().Key)
}

func TestRestart_ClearsCache(t *testing.T) {
	s, _, store := newFixture(t)
	ctx := context.Background()
	store.Save(ctx, "hi", map[string]string{"start_1": "नमस्ते"}, 0, nil)
	require.NoError(t, s.StartTranslation(ctx, "fr"))
	require.NoError(t, s.SaveCurrent("Bonjour"))
	s.Flush()

	_, ok := store.Load(ctx, "fr", nil)
	require.True(t, ok)

	s.Restart(ctx)
	s.Flush()

	_, ok = store.Load(ctx, "fr", nil)
	assert.False(t, ok)
	_, ok = store.Load(ctx, "hi", nil)
	assert.False(t, ok)
	assert.Equal(t, PhaseSelecting, s.Phase())
	assert.Empty(t, s.Translations())
}

func TestStartNew_KeepsCache(t *testing.T) {
	s, _, store := newFixture(t)
	ctx := context.Background()
	require.NoError(t, s.StartTranslation(ctx, "fr"))
	require.NoError(t, s.SaveCurrent("Bonjour"))

	s.StartNew()
	s.Flush()

	assert.Equal(t, PhaseSelecting, s.Phase())
	got, ok := store.Load(ctx, "fr", []string{"start_1", "start_2", "stop_1"})
	require.True(t, ok)
	assert.Equal(t, "Bonjour", got.Translations["start_1"])
	assert.Equal(t, 1, got.Cursor)

	current, ok := store.CurrentLanguage(ctx)
	require.True(t, ok)
	assert.Equal(t, "fr", current)
}

func TestAutosave_SkipsEmptyTranslations(t *testing.T) {
	s, _, store := newFixture(t)
	ctx := context.Background()
	require.NoError(t, s.StartTranslation(ctx, "fr"))

	require.NoError(t, s.Advance())
	s.Flush()

	_, ok := store.Load(ctx, "fr", nil)
	assert.False(t, ok)
}

func TestSerialize_UsesSourceOrder(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "fr"))
	require.NoError(t, s.SaveCurrent("Bonjour"))
	require.NoError(t, s.SaveCurrent("Jouer"))
	require.NoError(t, s.SaveCurrent(`Au "revoir"`))

	lang, content, count := s.Serialize()
	assert.Equal(t, "fr", lang)
	assert.Equal(t, 3, count)
	assert.Equal(t, strings.Join([]string{
		`start_1: "Bonjour"`,
		`start_2: "Jouer"`,
		``,
		`stop_1: "Au \"revoir\""`,
	}, "\n"), content)
}

func TestStats_LikelyUntranslated(t *testing.T) {
	s, _, _ := newFixture(t)
	require.NoError(t, s.StartTranslation(context.Background(), "fr"))
	require.NoError(t, s.SaveCurrent(""))
	require.NoError(t, s.SaveCurrent("Jouer"))

	st := s.Stats()
	assert.Equal(t, 2, st.Translated)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 66.7, st.Percent)
	assert.GreaterOrEqual(t, st.LikelyUntranslated, 1)
}
