package httpapi

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/internal/delivery"
	"github.com/MimeLyc/yaml-translator/internal/jobs"
	"github.com/MimeLyc/yaml-translator/internal/notify"
	"github.com/MimeLyc/yaml-translator/internal/yamlout"
)

const (
	defaultPreviewLimit = 80
	maxPreviewLimit     = 500
)

// deliveryView is a job as the UI shows it. Finished jobs carry the
// notification for their outcome.
type deliveryView struct {
	*jobs.DeliveryJob
	Notification *notify.Notification `json:"notification,omitempty"`
}

type deliveryDetailResponse struct {
	Job           deliveryView  `json:"job"`
	Preview       []previewLine `json:"preview"`
	PreviewOffset int           `json:"preview_offset"`
	PreviewLimit  int           `json:"preview_limit"`
	TotalEntries  int           `json:"total_entries"`
}

type previewLine struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// handleSend queues the current translations for upload. Sending the same
// content again while a job is in flight returns that job.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.target != nil && !s.target.Configured() {
		s.writeAppError(w, r, apperr.New(apperr.ErrConfig, "Telegram delivery is not configured"))
		return
	}
	// the delivered snapshot must not be saved later than its job is queued
	s.session.Flush()
	lang, content, count, err := s.serialized()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	sum := md5.Sum([]byte(content))
	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		Channel:   delivery.ChannelTelegram,
		DedupeKey: lang + "|" + hex.EncodeToString(sum[:]),
		Payload: jobs.Payload{
			LanguageCode: lang,
			FileName:     delivery.Filename(lang),
			EntryCount:   count,
			Content:      content,
		},
	})
	code := http.StatusAccepted
	result := "created"
	if !created {
		code = http.StatusOK
		result = "deduplicated"
	}
	s.metrics.deliveries.WithLabelValues(result).Inc()

	n := s.notifier.Notify(s.locale(r), notify.KindInfo, notify.SendQueued, map[string]any{"Language": lang})
	writeJSON(w, code, map[string]any{
		"created":      created,
		"job":          job,
		"notification": n,
	})
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.deliveryViews(s.locale(r), s.queue.List()))
}

func (s *Server) deliveryView(locale string, job *jobs.DeliveryJob) deliveryView {
	v := deliveryView{DeliveryJob: job}
	var n notify.Notification
	switch job.Status {
	case jobs.StatusSuccess:
		n = s.notifier.Notify(locale, notify.KindSuccess, notify.SendSucceeded, map[string]any{
			"Language": job.Payload.LanguageCode,
			"Count":    job.Payload.EntryCount,
		})
	case jobs.StatusFailed:
		n = s.notifier.ForError(locale, apperr.New(apperr.ErrDelivery, job.Error))
	default:
		return v
	}
	v.Notification = &n
	return v
}

func (s *Server) deliveryViews(locale string, list []*jobs.DeliveryJob) []deliveryView {
	views := make([]deliveryView, 0, len(list))
	for _, job := range list {
		views = append(views, s.deliveryView(locale, job))
	}
	return views
}

func (s *Server) handleDeliveryRoutes(w http.ResponseWriter, r *http.Request) {
	jobID, action, ok := parseDeliveryRoute(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "":
		s.handleDeliveryDetail(w, r, jobID)
	case "retry":
		s.handleDeliveryRetry(w, r, jobID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func parseDeliveryRoute(path string) (jobID string, action string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/api/deliveries/")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		return "", "", false
	}
	rawID, err := url.PathUnescape(parts[0])
	if err != nil || strings.TrimSpace(rawID) == "" {
		return "", "", false
	}
	if len(parts) == 1 {
		return rawID, "", true
	}
	return rawID, parts[1], true
}

func (s *Server) handleDeliveryDetail(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, ok := s.queue.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	offset := parsePositiveIntWithDefault(r.URL.Query().Get("offset"), 0)
	limit := parsePositiveIntWithDefault(r.URL.Query().Get("limit"), defaultPreviewLimit)
	if limit <= 0 {
		limit = defaultPreviewLimit
	}
	if limit > maxPreviewLimit {
		limit = maxPreviewLimit
	}

	entries := previewEntries(job.Payload.Content)
	writeJSON(w, http.StatusOK, deliveryDetailResponse{
		Job:           s.deliveryView(s.locale(r), job),
		Preview:       pageEntries(entries, offset, limit),
		PreviewOffset: offset,
		PreviewLimit:  limit,
		TotalEntries:  len(entries),
	})
}

func (s *Server) handleDeliveryRetry(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	job, err := s.queue.Retry(jobID)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotRetryable):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, jobs.ErrJobNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			s.writeAppError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func parsePositiveIntWithDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// previewEntries reads back the `key: "value"` lines of a serialized file.
func previewEntries(content string) []previewLine {
	ret := make([]previewLine, 0)
	for _, line := range strings.Split(content, "\n") {
		key, quoted, ok := strings.Cut(line, ": ")
		if !ok || len(quoted) < 2 || !strings.HasPrefix(quoted, `"`) || !strings.HasSuffix(quoted, `"`) {
			continue
		}
		ret = append(ret, previewLine{
			Index: len(ret) + 1,
			Key:   key,
			Value: yamlout.Unescape(quoted[1 : len(quoted)-1]),
		})
	}
	return ret
}

func pageEntries(entries []previewLine, offset, limit int) []previewLine {
	if offset >= len(entries) {
		return []previewLine{}
	}
	end := min(offset+limit, len(entries))
	return entries[offset:end]
}
