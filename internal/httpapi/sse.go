package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/MimeLyc/yaml-translator/internal/jobs"
)

// jobRevision identifies one observed state of a delivery job.
type jobRevision struct {
	status   jobs.Status
	attempts int
	updated  int64
}

func revisionOf(job *jobs.DeliveryJob) jobRevision {
	return jobRevision{status: job.Status, attempts: job.Attempts, updated: job.UpdatedAt.UnixNano()}
}

// handleDeliveryStream opens with a "snapshot" event holding every job, then
// emits a "delivery" event whenever a job changes state. Finished jobs carry
// their success or failure notification.
func (s *Server) handleDeliveryStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(event string, v any) bool {
		payload, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	locale := s.locale(r)
	seen := make(map[string]jobRevision)
	list := s.queue.List()
	for _, job := range list {
		seen[job.ID] = revisionOf(job)
	}
	if !emit("snapshot", s.deliveryViews(locale, list)) {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		list := s.queue.List()
		current := make(map[string]struct{}, len(list))
		// oldest first, so clients see changes in queue order
		for _, job := range slices.Backward(list) {
			current[job.ID] = struct{}{}
			rev := revisionOf(job)
			if prev, ok := seen[job.ID]; ok && prev == rev {
				continue
			}
			seen[job.ID] = rev
			if !emit("delivery", s.deliveryView(locale, job)) {
				return
			}
		}
		for id := range seen {
			if _, ok := current[id]; !ok {
				delete(seen, id)
			}
		}
	}
}
