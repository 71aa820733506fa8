package delivery

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
)

func TestFilename(t *testing.T) {
	assert.Equal(t, "hi.yml", Filename("hi"))
	assert.Equal(t, `attachment; filename="pt-BR.yml"`, ContentDisposition("pt-BR"))
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	path, err := WriteFile(dir, "es", "a_1: \"Hola\"")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "es.yml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a_1: \"Hola\"", string(data))

	_, err = WriteFile(dir, "../es", "x")
	assert.True(t, apperr.IsErrorType(err, apperr.ErrValidation))
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "🌍 Translation file for HI\n📊 12 translations", Caption("hi", 12))
}

func TestTelegramClient_SendDocument(t *testing.T) {
	var gotPath, chatID, caption, fileName, fileBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		chatID = r.FormValue("chat_id")
		caption = r.FormValue("caption")
		f, hdr, err := r.FormFile("document")
		require.NoError(t, err)
		defer f.Close()
		fileName = hdr.Filename
		raw, _ := io.ReadAll(f)
		fileBody = string(raw)
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	client := NewTelegramClient(server.URL+"/", "123:abc", "-100200", time.Second)
	require.True(t, client.Configured())

	err := client.SendDocument(context.Background(), "es", "start_1: \"Hola\"", 1)
	require.NoError(t, err)
	assert.Equal(t, "/bot123:abc/sendDocument", gotPath)
	assert.Equal(t, "-100200", chatID)
	assert.Equal(t, "🌍 Translation file for ES\n📊 1 translations", caption)
	assert.Equal(t, "es.yml", fileName)
	assert.Equal(t, "start_1: \"Hola\"", fileBody)
}

func TestTelegramClient_SendDocument_NotOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	client := NewTelegramClient(server.URL, "t", "c", time.Second)
	err := client.SendDocument(context.Background(), "es", "x", 1)
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrDelivery))
	assert.Contains(t, err.Error(), "Bad Request: chat not found")
}

func TestTelegramClient_SendDocument_TransportErrorHidesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewTelegramClient(url, "secret-token", "c", time.Second)
	err := client.SendDocument(context.Background(), "es", "x", 1)
	require.Error(t, err)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrDelivery))
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestTelegramClient_NotConfigured(t *testing.T) {
	client := NewTelegramClient("", "", "", 0)
	assert.False(t, client.Configured())

	err := client.SendDocument(context.Background(), "es", "x", 1)
	assert.True(t, apperr.IsErrorType(err, apperr.ErrDelivery))
}
