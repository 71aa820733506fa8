package keyset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
)

const sampleYAML = `
welcome_msg: "Welcome {0}"
play_1: Playing
play_2: 'Paused'
ping: Pong
`

func TestParse_KeepsDocumentOrder(t *testing.T) {
	m, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"welcome_msg", "play_1", "play_2", "ping"}, m.Keys)
	v, ok := m.Get("welcome_msg")
	require.True(t, ok)
	assert.Equal(t, "Welcome {0}", v)
}

func TestParse_JSONInput(t *testing.T) {
	m, err := Parse([]byte(`{"zeta": "Z", "alpha": "A", "count": 3}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "count"}, m.Keys)
}

func TestParse_KeepsTypedScalarsAsText(t *testing.T) {
	m, err := Parse([]byte(`max_1: 10
ratio_1: 1.5
enabled_1: true
flag_1: yes
unset_1: ~
label_1: Label
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"max_1", "ratio_1", "enabled_1", "flag_1", "label_1"}, m.Keys)
	assert.Equal(t, "10", m.Values["max_1"])
	assert.Equal(t, "1.5", m.Values["ratio_1"])
	assert.Equal(t, "true", m.Values["enabled_1"])
	assert.Equal(t, "yes", m.Values["flag_1"])
	_, ok := m.Get("unset_1")
	assert.False(t, ok, "null values have nothing to translate")
}

func TestParse_UnwrapsLocaleRoot(t *testing.T) {
	m, err := Parse([]byte("en:\n  b: B\n  a: A\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a"}, m.Keys)
}

func TestParse_RejectsNested(t *testing.T) {
	_, err := Parse([]byte("a: A\nnav:\n  home: Home\n"))
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrParse))
}

func TestParse_RejectsMalformed(t *testing.T) {
	_, err := Parse([]byte("a: [unclosed"))
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrParse))

	_, err = Parse([]byte("- just\n- a list\n"))
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrParse))
}

func TestHTTPLoader_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/langs/en.yml":
			_, _ = w.Write([]byte(sampleYAML))
		case "/langs/empty.yml":
			_, _ = w.Write([]byte("# nothing here\n"))
		case "/langs/bad.yml":
			_, _ = w.Write([]byte("key: [oops"))
		case "/langs/boom.yml":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	loader := NewHTTPLoader(srv.URL+"/langs/", WithHTTPClient(srv.Client()))
	ctx := context.Background()

	m, err := loader.Load(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, 4, m.Len())

	_, err = loader.Load(ctx, "xx")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrNotFound))

	_, err = loader.Load(ctx, "empty")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrEmpty))

	_, err = loader.Load(ctx, "bad")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrParse))

	_, err = loader.Load(ctx, "boom")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrLoad))

	_, err = loader.Load(ctx, "../etc")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrValidation))
}

func TestDirLoader_PrefersJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hi.json"), []byte(`{"a_1": "एक"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hi.yml"), []byte("a_1: ignored\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "es.yml"), []byte("a_1: uno\n"), 0o644))

	loader := NewDirLoader(dir)

	m, err := loader.Load(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "एक", m.Values["a_1"])

	m, err = loader.Load(context.Background(), "es")
	require.NoError(t, err)
	assert.Equal(t, "uno", m.Values["a_1"])

	_, err = loader.Load(context.Background(), "fr")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrNotFound))
}

type stubLoader struct {
	m     Mapping
	err   error
	calls int
}

func (s *stubLoader) Load(context.Context, string) (Mapping, error) {
	s.calls++
	return s.m, s.err
}

func TestFallbackLoader(t *testing.T) {
	found := NewMapping()
	found.Set("k", "v")

	missing := &stubLoader{err: apperr.New(apperr.ErrNotFound, "missing")}
	hit := &stubLoader{m: found}
	never := &stubLoader{m: found}

	m, err := NewFallbackLoader(missing, hit, never).Load(context.Background(), "es")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, m.Keys)
	assert.Equal(t, 0, never.calls)

	broken := &stubLoader{err: apperr.New(apperr.ErrParse, "bad")}
	_, err = NewFallbackLoader(broken, hit).Load(context.Background(), "es")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrParse))

	_, err = NewFallbackLoader(missing).Load(context.Background(), "es")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrNotFound))
}
