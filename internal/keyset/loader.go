package keyset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

// Loader fetches the key set of one language.
type Loader interface {
	Load(ctx context.Context, languageCode string) (Mapping, error)
}

// maxFileSize caps a single language file download.
const maxFileSize = 8 << 20

type HTTPLoader struct {
	baseURL    string
	httpClient *http.Client
}

type HTTPOption func(*HTTPLoader)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(l *HTTPLoader) {
		l.httpClient = c
	}
}

// NewHTTPLoader loads <baseURL>/<lang>.yml.
func NewHTTPLoader(baseURL string, opts ...HTTPOption) *HTTPLoader {
	l := &HTTPLoader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *HTTPLoader) URL(languageCode string) string {
	return l.baseURL + "/" + languageCode + ".yml"
}

func (l *HTTPLoader) Load(ctx context.Context, languageCode string) (Mapping, error) {
	if err := validCode(languageCode); err != nil {
		return Mapping{}, err
	}
	data, err := l.Fetch(ctx, languageCode)
	if err != nil {
		return Mapping{}, err
	}
	return decode(data, languageCode)
}

// Fetch returns the raw file body for languageCode.
func (l *HTTPLoader) Fetch(ctx context.Context, languageCode string) ([]byte, error) {
	url := l.URL(languageCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.NewWithCause(apperr.ErrLoad, "build request", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, apperr.NewWithCause(apperr.ErrLoad, "fetch language file", err).
			WithContext("url", url)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.Newf(apperr.ErrNotFound, "no language file for %q", languageCode).
			WithContext("url", url)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, apperr.Newf(apperr.ErrLoad, "HTTP error! status: %d", resp.StatusCode).
			WithContext("url", url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize))
	if err != nil {
		return nil, apperr.NewWithCause(apperr.ErrLoad, "read response body", err)
	}
	return data, nil
}

// DirLoader reads <dir>/<lang>.json, then <dir>/<lang>.yml.
type DirLoader struct {
	dir string
}

func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{dir: dir}
}

func (l *DirLoader) Load(_ context.Context, languageCode string) (Mapping, error) {
	if err := validCode(languageCode); err != nil {
		return Mapping{}, err
	}
	for _, ext := range []string{".json", ".yml", ".yaml"} {
		path := filepath.Join(l.dir, languageCode+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Mapping{}, apperr.NewWithCause(apperr.ErrLoad, "read language file", err).
				WithContext("path", path)
		}
		return decode(data, languageCode)
	}
	return Mapping{}, apperr.Newf(apperr.ErrNotFound, "no language file for %q", languageCode).
		WithContext("dir", l.dir)
}

// FallbackLoader tries each loader in turn. A NotFound result moves on to
// the next loader; any other error is returned immediately.
type FallbackLoader struct {
	loaders []Loader
}

func NewFallbackLoader(loaders ...Loader) *FallbackLoader {
	return &FallbackLoader{loaders: loaders}
}

func (l *FallbackLoader) Load(ctx context.Context, languageCode string) (Mapping, error) {
	var lastErr error = apperr.Newf(apperr.ErrNotFound, "no language file for %q", languageCode)
	for _, loader := range l.loaders {
		m, err := loader.Load(ctx, languageCode)
		if err == nil {
			return m, nil
		}
		if !apperr.IsErrorType(err, apperr.ErrNotFound) {
			return Mapping{}, err
		}
		log.Debug("Loader %T has no %s: %v", loader, languageCode, err)
		lastErr = err
	}
	return Mapping{}, lastErr
}

func decode(data []byte, languageCode string) (Mapping, error) {
	m, err := Parse(data)
	if err != nil {
		return Mapping{}, err
	}
	if m.Len() == 0 {
		return Mapping{}, apperr.New(apperr.ErrEmpty, "No valid YAML content found").
			WithContext("language", languageCode)
	}
	return m, nil
}

func validCode(languageCode string) error {
	if languageCode == "" || strings.ContainsAny(languageCode, `/\.`) {
		return apperr.New(apperr.ErrValidation, fmt.Sprintf("invalid language code %q", languageCode))
	}
	return nil
}
