package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/nmpc/internal/dynamo"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("chatty", "console"); !errors.Is(err, dynamo.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nmpc.log")
	logger, err := New("debug", "json", path)
	if err != nil {
		t.Fatal(err)
	}
	logger.Named("governor").Infow("mode change", "to", "TRACKING")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"logger":"nmpc.governor"`, `"msg":"mode change"`, `"to":"TRACKING"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log line %q missing %s", data, want)
		}
	}
}
