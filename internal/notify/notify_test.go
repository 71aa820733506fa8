package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
)

func TestNotify_RendersTemplate(t *testing.T) {
	n := New("en")

	got := n.Notify("", KindSuccess, LoadSucceeded, map[string]any{"Count": 42})
	assert.Equal(t, KindSuccess, got.Kind)
	assert.Equal(t, "YAML loaded successfully!", got.Title)
	assert.Equal(t, "Found 42 translation keys", got.Description)
}

func TestNotify_Locale(t *testing.T) {
	n := New("en")

	got := n.Notify("hi", KindSuccess, SendSucceeded, nil)
	assert.Equal(t, "Telegram पर भेजा गया!", got.Title)

	got = n.Notify("de", KindSuccess, SendSucceeded, nil)
	assert.Equal(t, "Sent to Telegram!", got.Title)
}

func TestNotify_UnknownIDFallsBackToID(t *testing.T) {
	n := New("en")
	got := n.Notify("en", KindInfo, "Nope", nil)
	assert.Equal(t, "NopeTitle", got.Title)
}

func TestForError(t *testing.T) {
	n := New("en")

	tests := []struct {
		name  string
		err   error
		title string
	}{
		{"load", apperr.NewWithCause(apperr.ErrLoad, "failed to load source file", apperr.New(apperr.ErrNotFound, "HTTP error! status: 404")), "Error loading YAML"},
		{"delivery", apperr.New(apperr.ErrDelivery, "Failed to send to Telegram: chat not found"), "Failed to send"},
		{"validation", apperr.New(apperr.ErrValidation, "no key selected"), "Invalid request"},
		{"plain", assert.AnError, "Something went wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.ForError("", tt.err)
			assert.Equal(t, KindError, got.Kind)
			assert.Equal(t, tt.title, got.Title)
			assert.Equal(t, apperr.Message(tt.err), got.Description)
		})
	}

	assert.Equal(t, Notification{}, n.ForError("", nil))
}

func TestLanguages(t *testing.T) {
	assert.ElementsMatch(t, []string{"en", "hi"}, New("en").Languages())
}
