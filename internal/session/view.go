package session

import (
	"math"

	"github.com/abadojack/whatlanggo"
)

// minDetectConfidence is the whatlanggo confidence above which a value is
// trusted to be English.
const minDetectConfidence = 0.8

type Stats struct {
	Translated           int     `json:"translated"`
	Total                int     `json:"total"`
	Existing             int     `json:"existing"`
	Percent              float64 `json:"percent"`
	PreTranslatedPercent float64 `json:"pre_translated_percent"`
	LikelyUntranslated   int     `json:"likely_untranslated"`
}

// View is a point-in-time snapshot of the session for rendering.
type View struct {
	Phase         Phase  `json:"phase"`
	Language      string `json:"language,omitempty"`
	Resumed       bool   `json:"resumed"`
	Filter        Filter `json:"filter"`
	Cursor        int    `json:"cursor"`
	FilteredCount int    `json:"filtered_count"`
	Key           string `json:"key,omitempty"`
	Source        string `json:"source,omitempty"`
	Existing      string `json:"existing,omitempty"`
	Translation   string `json:"translation,omitempty"`
	IsTranslated  bool   `json:"is_translated"`
	Stats         Stats  `json:"stats"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.filteredKeysLocked()
	v := View{
		Phase:         s.phase,
		Language:      s.lang,
		Resumed:       s.resumed,
		Filter:        s.filter,
		Cursor:        s.cursor,
		FilteredCount: len(keys),
		Stats:         s.statsLocked(),
	}
	if s.phase == PhaseTranslating && s.cursor < len(keys) {
		key := keys[s.cursor]
		v.Key = key
		v.Source = s.source.Values[key]
		v.Existing, _ = s.existing.Get(key)
		v.Translation = s.translations[key]
		v.IsTranslated = v.Translation != ""
	}
	return v
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Session) statsLocked() Stats {
	st := Stats{Total: s.source.Len(), Existing: s.existing.Len()}
	for key, value := range s.translations {
		if value == "" {
			continue
		}
		st.Translated++
		if s.looksUntranslatedLocked(key, value) {
			st.LikelyUntranslated++
		}
	}
	if st.Total > 0 {
		st.Percent = percent(st.Translated, st.Total)
		st.PreTranslatedPercent = math.Round(percent(s.existing.Len(), st.Total))
	}
	return st
}

// looksUntranslatedLocked reports values that equal the source text or read
// as English for a non-English target.
func (s *Session) looksUntranslatedLocked(key, value string) bool {
	if source, ok := s.source.Values[key]; ok && source == value {
		return true
	}
	if s.lang == "" || s.lang == s.sourceLang || s.lang == "en" {
		return false
	}
	info := whatlanggo.Detect(value)
	return info.Lang == whatlanggo.Eng && info.Confidence >= minDetectConfidence
}

func percent(n, total int) float64 {
	return math.Round(float64(n)/float64(total)*1000) / 10
}
