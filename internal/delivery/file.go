// Package delivery hands a finished translation file to the volunteer:
// as a local download or as a Telegram document.
package delivery

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/pkg/file"
)

const FileExt = ".yml"

// Filename returns the download name for a language, e.g. "hi.yml".
func Filename(languageCode string) string {
	return strings.TrimSpace(languageCode) + FileExt
}

// ContentDisposition is the header value that makes browsers save the file.
func ContentDisposition(languageCode string) string {
	return fmt.Sprintf("attachment; filename=%q", Filename(languageCode))
}

// WriteFile writes content to <dir>/<lang>.yml and returns the path.
func WriteFile(dir, languageCode, content string) (string, error) {
	languageCode = strings.TrimSpace(languageCode)
	if languageCode == "" || strings.ContainsAny(languageCode, `/\`) {
		return "", apperr.Newf(apperr.ErrValidation, "invalid language code %q", languageCode)
	}
	path := filepath.Join(dir, Filename(languageCode))
	if err := file.WriteAtomic(path, []byte(content), 0o644); err != nil {
		return "", apperr.NewWithCause(apperr.ErrDelivery, "write translation file", err).WithContext("path", path)
	}
	return path, nil
}
