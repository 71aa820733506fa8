package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/internal/delivery"
	"github.com/MimeLyc/yaml-translator/internal/notify"
	"github.com/MimeLyc/yaml-translator/internal/session"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

type sessionResponse struct {
	session.View
	// RemainingSeconds estimates the time left for untranslated keys.
	RemainingSeconds int                  `json:"remaining_seconds"`
	Notification     *notify.Notification `json:"notification,omitempty"`
}

type startRequest struct {
	Language string `json:"language"`
}

type saveRequest struct {
	Translation string `json:"translation"`
}

func (s *Server) writeSession(w http.ResponseWriter, n *notify.Notification) {
	v := s.session.View()
	remaining := v.Stats.Total - v.Stats.Translated
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		View:             v,
		RemainingSeconds: remaining * s.public.ETASeconds,
		Notification:     n,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeSession(w, nil)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.session.StartTranslation(r.Context(), req.Language); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	v := s.session.View()
	var n notify.Notification
	if v.Stats.Existing > 0 {
		n = s.notifier.Notify(s.locale(r), notify.KindSuccess, notify.ExistingFound, map[string]any{
			"Language": v.Language,
		})
	} else {
		n = s.notifier.Notify(s.locale(r), notify.KindSuccess, notify.LoadSucceeded, map[string]any{
			"Count": v.Stats.Total,
		})
	}
	s.writeSession(w, &n)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.session.SaveCurrent(req.Translation); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.metrics.saves.Inc()
	s.writeSession(w, nil)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.session.Advance(); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.writeSession(w, nil)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.session.GoBack(); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.writeSession(w, nil)
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var f session.Filter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.session.SetFilter(f); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.writeSession(w, nil)
}

// handleRestart drops the session and every cached language.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.session.Restart(r.Context())
	n := s.notifier.Notify(s.locale(r), notify.KindInfo, notify.CacheCleared, nil)
	s.writeSession(w, &n)
}

func (s *Server) handleNew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.session.StartNew()
	s.writeSession(w, nil)
}

func (s *Server) serialized() (lang, content string, count int, err error) {
	lang, content, count = s.session.Serialize()
	if lang == "" || count == 0 {
		return "", "", 0, apperr.New(apperr.ErrValidation, "there are no translations to export yet")
	}
	return lang, content, count, nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	lang, content, count, err := s.serialized()
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{
			"error": apperr.Message(err),
			"notification": s.notifier.Notify(s.locale(r), notify.KindError, notify.DownloadFailed,
				map[string]any{"Detail": apperr.Message(err)}),
		})
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", delivery.ContentDisposition(lang))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, content); err != nil {
		log.Warn("Download of %s interrupted: %v", delivery.Filename(lang), err)
		return
	}
	log.Info("Downloaded %s (%d translations)", delivery.Filename(lang), count)
}

func (s *Server) handleYAML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	lang, content, count, err := s.serialized()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"language":  lang,
		"file_name": delivery.Filename(lang),
		"count":     count,
		"content":   content,
	})
}
