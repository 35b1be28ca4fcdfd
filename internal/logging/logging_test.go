package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Atharv714/Safe-Passage/internal/config"
)

func TestWriter_ConsoleOnly(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	w, closer := Writer(config.LogConfig{}, &console)
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if console.String() != "hello\n" {
		t.Fatalf("console=%q", console.String())
	}
}

func TestWriter_TeesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "sensord.log")
	var console bytes.Buffer
	w, closer := Writer(config.LogConfig{File: path, MaxSizeMB: 1}, &console)
	if _, err := w.Write([]byte("pothole event seq=1\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "seq=1") || !strings.Contains(console.String(), "seq=1") {
		t.Fatalf("file=%q console=%q", data, console.String())
	}
}
