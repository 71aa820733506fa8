package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/internal/config"
	"github.com/MimeLyc/yaml-translator/internal/langindex"
	"github.com/MimeLyc/yaml-translator/internal/notify"
	"github.com/MimeLyc/yaml-translator/pkg/icron"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

// PublicConfig is the part of the configuration the browser UI needs.
type PublicConfig struct {
	AppName            string               `json:"app_name"`
	BasePath           string               `json:"base_path"`
	SourceLanguage     string               `json:"source_language"`
	ETASeconds         int                  `json:"eta_seconds"`
	Warning            config.WarningConfig `json:"warning"`
	Links              config.LinksConfig   `json:"links"`
	Locales            []string             `json:"locales"`
	DeliveryConfigured bool                 `json:"delivery_configured"`
}

func publicConfigFrom(cfg *config.Config) PublicConfig {
	return PublicConfig{
		AppName:        cfg.AppName,
		BasePath:       cfg.HTTP.BasePath,
		SourceLanguage: cfg.Source.Language,
		ETASeconds:     cfg.Translation.ETASeconds,
		Warning:        cfg.Translation.Warning,
		Links:          cfg.Links,
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ret := s.public
	ret.Locales = s.notifier.Languages()
	ret.DeliveryConfigured = s.target != nil && s.target.Configured()
	writeJSON(w, http.StatusOK, ret)
}

type languagesResponse struct {
	Languages   []langindex.Language `json:"languages"`
	RefreshedAt *time.Time           `json:"refreshed_at,omitempty"`
	Schedule    *icron.TriggerInfo   `json:"schedule,omitempty"`
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.index == nil {
		writeError(w, http.StatusNotImplemented, "language index is not configured")
		return
	}
	ret := languagesResponse{Languages: s.index.Languages()}
	if idx := s.index.Index(); !idx.RefreshedAt.IsZero() {
		ret.RefreshedAt = &idx.RefreshedAt
	}
	if s.schedule != nil {
		ret.Schedule = s.schedule.Info(s.now())
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) handleLanguagesRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.index == nil {
		writeError(w, http.StatusNotImplemented, "language index is not configured")
		return
	}
	idx, err := s.index.Refresh(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

type resumeResponse struct {
	Available    bool                 `json:"available"`
	Language     string               `json:"language,omitempty"`
	Translated   int                  `json:"translated,omitempty"`
	Cursor       int                  `json:"cursor,omitempty"`
	SavedAt      *time.Time           `json:"saved_at,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	record, ok := s.cache.Resumable(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, resumeResponse{})
		return
	}
	savedAt := time.UnixMilli(record.SavedAt).UTC()
	n := s.notifier.Notify(s.locale(r), notify.KindInfo, notify.ResumeAvailable, map[string]any{
		"Language": record.LanguageCode,
		"Count":    len(record.Translations),
	})
	writeJSON(w, http.StatusOK, resumeResponse{
		Available:    true,
		Language:     record.LanguageCode,
		Translated:   len(record.Translations),
		Cursor:       record.Cursor,
		SavedAt:      &savedAt,
		Notification: &n,
	})
}

// handleResumeSkip discards the progress the resume prompt offered.
func (s *Server) handleResumeSkip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	lang, ok := s.cache.CurrentLanguage(r.Context())
	if ok {
		s.cache.Clear(r.Context(), lang)
		log.Info("Skipped resuming %s, cached progress discarded", lang)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"language": lang,
	})
}

type cachedSessionResponse struct {
	Language   string    `json:"language"`
	Translated int       `json:"translated"`
	Cursor     int       `json:"cursor"`
	SavedAt    time.Time `json:"saved_at"`
	Current    bool      `json:"current"`
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		current, _ := s.cache.CurrentLanguage(r.Context())
		ret := make([]cachedSessionResponse, 0)
		for _, lang := range s.cache.CachedLanguages(r.Context()) {
			record, ok := s.cache.Load(r.Context(), lang, nil)
			if !ok {
				continue
			}
			ret = append(ret, cachedSessionResponse{
				Language:   lang,
				Translated: len(record.Translations),
				Cursor:     record.Cursor,
				SavedAt:    time.UnixMilli(record.SavedAt).UTC(),
				Current:    lang == current,
			})
		}
		writeJSON(w, http.StatusOK, ret)
	case http.MethodDelete:
		s.cache.ClearAll(r.Context())
		n := s.notifier.Notify(s.locale(r), notify.KindSuccess, notify.CacheCleared, nil)
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":           true,
			"notification": n,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleCacheLanguage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	lang := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/cache/"), "/")
	if decoded, err := url.PathUnescape(lang); err == nil {
		lang = decoded
	}
	if lang == "" || strings.Contains(lang, "/") {
		writeError(w, http.StatusBadRequest, "missing language code")
		return
	}
	s.cache.Clear(r.Context(), lang)
	n := s.notifier.Notify(s.locale(r), notify.KindSuccess, notify.CacheCleared, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"language":     lang,
		"notification": n,
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings.Redacted())
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved.Redacted())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// locale picks the notification language: ?locale= first, then Accept-Language.
func (s *Server) locale(r *http.Request) string {
	if l := strings.TrimSpace(r.URL.Query().Get("locale")); l != "" {
		return l
	}
	return r.Header.Get("Accept-Language")
}

func statusFor(err error) int {
	if apperr.IsErrorType(err, apperr.ErrNotFound) {
		return http.StatusNotFound
	}
	t, _ := apperr.TypeOf(err)
	switch t {
	case apperr.ErrValidation:
		return http.StatusBadRequest
	case apperr.ErrLoad, apperr.ErrParse, apperr.ErrEmpty, apperr.ErrDelivery:
		return http.StatusBadGateway
	case apperr.ErrConfig:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError answers with the error text and a localized notification.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Warn("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, map[string]any{
		"error":        apperr.Message(err),
		"notification": s.notifier.ForError(s.locale(r), err),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
