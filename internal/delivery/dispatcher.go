package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/internal/jobs"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

const ChannelTelegram = "telegram"

// CacheClearer drops the saved progress of a language once it is delivered.
// Progress saved after the cutoff is newer than the delivered file and stays.
type CacheClearer interface {
	ClearSavedBefore(ctx context.Context, languageCode string, cutoff time.Time) bool
}

// Dispatcher executes delivery jobs. The Telegram client can be swapped at
// runtime when settings change.
type Dispatcher struct {
	cache CacheClearer

	mu       sync.RWMutex
	telegram *TelegramClient
}

func NewDispatcher(telegram *TelegramClient, cache CacheClearer) *Dispatcher {
	return &Dispatcher{telegram: telegram, cache: cache}
}

func (d *Dispatcher) SetTelegram(c *TelegramClient) {
	d.mu.Lock()
	d.telegram = c
	d.mu.Unlock()
}

// Configured reports whether uploads have a target.
func (d *Dispatcher) Configured() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.telegram.Configured()
}

// Execute uploads the job's file and, on success, clears that language's
// cached progress unless it was saved after the job was queued. It satisfies
// jobs.Executor.
func (d *Dispatcher) Execute(ctx context.Context, job *jobs.DeliveryJob) error {
	if job.Channel != ChannelTelegram {
		return apperr.Newf(apperr.ErrDelivery, "unknown delivery channel %q", job.Channel)
	}
	if job.Payload.Content == "" {
		return apperr.New(apperr.ErrDelivery, "delivery job has no file content").WithContext("job", job.ID)
	}

	d.mu.RLock()
	client := d.telegram
	d.mu.RUnlock()

	p := job.Payload
	if err := client.SendDocument(ctx, p.LanguageCode, p.Content, p.EntryCount); err != nil {
		return err
	}
	log.Info("Sent %s (%d translations) to Telegram", p.FileName, p.EntryCount)
	if d.cache != nil {
		d.cache.ClearSavedBefore(ctx, p.LanguageCode, job.CreatedAt)
	}
	return nil
}
