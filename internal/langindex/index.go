// Package langindex keeps a local copy of every published language file and
// the list of languages that already have a translation.
package langindex

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/internal/keyset"
	"github.com/MimeLyc/yaml-translator/pkg/file"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

//go:embed iso639-1.txt
var isoCodes string

const (
	indexFileName      = "translated.json"
	defaultConcurrency = 8
)

// Codes returns the ISO 639-1 codes fetched on refresh.
func Codes() []string {
	var ret []string
	sc := bufio.NewScanner(strings.NewReader(isoCodes))
	for sc.Scan() {
		if code := strings.TrimSpace(sc.Text()); code != "" {
			ret = append(ret, code)
		}
	}
	return ret
}

// Fetcher returns the raw language file for a code, with an apperr NotFound
// error when none is published.
type Fetcher interface {
	Fetch(ctx context.Context, languageCode string) ([]byte, error)
}

type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"native_name"`
	Translated bool   `json:"translated"`
}

type Index struct {
	Translated  []string  `json:"translated"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

type Option func(*Refresher)

func WithConcurrency(n int) Option {
	return func(r *Refresher) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithCodes(codes []string) Option {
	return func(r *Refresher) {
		if len(codes) > 0 {
			r.codes = append([]string(nil), codes...)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}

// Refresher mirrors language files into dir as JSON. Concurrent Refresh
// calls share one run.
type Refresher struct {
	fetcher     Fetcher
	dir         string
	concurrency int
	codes       []string
	now         func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	index Index
}

func NewRefresher(fetcher Fetcher, dir string, opts ...Option) *Refresher {
	r := &Refresher{
		fetcher:     fetcher,
		dir:         dir,
		concurrency: defaultConcurrency,
		codes:       Codes(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Refresher) Dir() string {
	return r.dir
}

// Load reads the index written by the last refresh. Without one, it is
// rebuilt from the JSON files present in dir.
func (r *Refresher) Load() error {
	data, err := os.ReadFile(filepath.Join(r.dir, indexFileName))
	if err == nil {
		var idx Index
		if err := json.Unmarshal(data, &idx); err != nil {
			return apperr.NewWithCause(apperr.ErrParse, "decode language index", err).
				WithContext("path", filepath.Join(r.dir, indexFileName))
		}
		sort.Strings(idx.Translated)
		r.setIndex(idx)
		return nil
	}
	if !os.IsNotExist(err) {
		return apperr.NewWithCause(apperr.ErrLoad, "read language index", err)
	}

	files, err := file.FindByExt(r.dir, ".json")
	if err != nil {
		return apperr.NewWithCause(apperr.ErrLoad, "scan language directory", err).WithContext("dir", r.dir)
	}
	idx := Index{Translated: []string{}}
	for _, path := range files {
		if code := file.Stem(path); code != "" && filepath.Base(path) != indexFileName {
			idx.Translated = append(idx.Translated, code)
		}
	}
	sort.Strings(idx.Translated)
	r.setIndex(idx)
	return nil
}

// Refresh fetches every known code and rewrites the local mirror. Missing
// or malformed files are skipped; the run fails only if the context ends or
// nothing could be written.
func (r *Refresher) Refresh(ctx context.Context) (Index, error) {
	v, err, shared := r.group.Do("refresh", func() (any, error) {
		return r.refresh(ctx)
	})
	if shared {
		log.Debug("Joined an in-flight language refresh")
	}
	if err != nil {
		return Index{}, err
	}
	return v.(Index), nil
}

func (r *Refresher) refresh(ctx context.Context) (Index, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return Index{}, apperr.NewWithCause(apperr.ErrLoad, "create language directory", err).WithContext("dir", r.dir)
	}

	start := r.now()
	var (
		mu         sync.Mutex
		translated = make([]string, 0)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, code := range r.codes {
		g.Go(func() error {
			ok, err := r.mirror(gctx, code)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				translated = append(translated, code)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Index{}, err
	}
	if len(translated) == 0 {
		return Index{}, apperr.New(apperr.ErrLoad, "no language files could be fetched")
	}

	sort.Strings(translated)
	idx := Index{Translated: translated, RefreshedAt: r.now().UTC()}
	data, err := json.MarshalIndent(idx, "", "    ")
	if err != nil {
		return Index{}, apperr.NewWithCause(apperr.ErrUnknown, "encode language index", err)
	}
	if err := file.WriteAtomic(filepath.Join(r.dir, indexFileName), data, 0o644); err != nil {
		return Index{}, apperr.NewWithCause(apperr.ErrLoad, "write language index", err)
	}
	r.setIndex(idx)
	log.Info("Language refresh finished: %d languages in %s", len(translated), r.now().Sub(start).Round(time.Millisecond))
	return idx, nil
}

// mirror stores one language as JSON. It reports false when the language is
// not published or its file is unusable; only context cancellation is an error.
func (r *Refresher) mirror(ctx context.Context, code string) (bool, error) {
	data, err := r.fetcher.Fetch(ctx, code)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if apperr.IsErrorType(err, apperr.ErrNotFound) {
			log.Debug("%s.yml not found, skipping", code)
		} else {
			log.Warn("Fetching %s.yml failed: %v", code, err)
		}
		return false, nil
	}

	m, err := keyset.Parse(data)
	if err != nil {
		log.Warn("Error in %s.yml: %v", code, err)
		return false, nil
	}
	if m.Len() == 0 {
		log.Warn("%s.yml has no entries, skipping", code)
		return false, nil
	}

	out, err := encodeOrdered(m)
	if err != nil {
		log.Warn("Encoding %s.json failed: %v", code, err)
		return false, nil
	}
	if err := file.WriteAtomic(filepath.Join(r.dir, code+".json"), out, 0o644); err != nil {
		log.Error("Writing %s.json failed: %v", code, err)
		return false, nil
	}
	log.Debug("Saved %s.json (%d keys)", code, m.Len())
	return true, nil
}

// encodeOrdered writes m as a JSON object keeping source key order.
func encodeOrdered(m keyset.Mapping) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, key := range m.Keys {
		k, err := marshalString(key)
		if err != nil {
			return nil, err
		}
		v, err := marshalString(m.Values[key])
		if err != nil {
			return nil, err
		}
		buf.WriteString("    ")
		buf.Write(k)
		buf.WriteString(": ")
		buf.Write(v)
		if i < len(m.Keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (r *Refresher) setIndex(idx Index) {
	r.mu.Lock()
	r.index = idx
	r.mu.Unlock()
}

func (r *Refresher) Index() Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.index
	idx.Translated = append([]string(nil), r.index.Translated...)
	return idx
}

func (r *Refresher) IsTranslated(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := sort.SearchStrings(r.index.Translated, code)
	return i < len(r.index.Translated) && r.index.Translated[i] == code
}

// Languages lists every known code with display names, translated ones first.
func (r *Refresher) Languages() []Language {
	ret := make([]Language, 0, len(r.codes))
	for _, code := range r.codes {
		ret = append(ret, Describe(code, r.IsTranslated(code)))
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return ret[i].Translated && !ret[j].Translated
	})
	return ret
}

// Describe resolves English and native display names for a code.
func Describe(code string, translated bool) Language {
	l := Language{Code: code, Name: code, NativeName: code, Translated: translated}
	tag, err := language.Parse(code)
	if err != nil {
		return l
	}
	if name := display.English.Languages().Name(tag); name != "" {
		l.Name = name
	}
	if native := display.Self.Name(tag); native != "" {
		l.NativeName = native
	}
	return l
}
