package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRotatingFileWriter(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "build.log")

	if err := os.WriteFile(logFile, []byte("previous run\n"), 0600); err != nil {
		t.Fatalf("Failed to seed log file: %v", err)
	}

	w, err := NewRotatingFileWriter(logFile, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter() error = %v", err)
	}
	defer w.Close()

	if w.size != int64(len("previous run\n")) {
		t.Errorf("size = %d, want existing file size", w.size)
	}

	if _, err := NewRotatingFileWriter(logFile, 0, 3); err == nil {
		t.Error("NewRotatingFileWriter() accepted a zero max size")
	}
}

func TestRotatingFileWriter_Write(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "build.log")
	w, err := NewRotatingFileWriter(logFile, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter() error = %v", err)
	}

	data := []byte("batch committed\n")
	n, err := w.Write(data)
	if err != nil || n != len(data) {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := w.Write(data); err == nil {
		t.Error("Write() after Close() succeeded")
	}

	content, _ := os.ReadFile(logFile)
	if string(content) != string(data) {
		t.Errorf("content = %q, want %q", content, data)
	}
}

func TestRotatingFileWriter_Rotation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "build.log")
	w, err := NewRotatingFileWriter(logFile, 10, 2)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter() error = %v", err)
	}
	defer w.Close()

	for _, line := range []string{"first\n", "second\n", "third\n", "fourth\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write(%q) error = %v", line, err)
		}
	}

	tests := []struct {
		path string
		want string
	}{
		{logFile, "fourth\n"},
		{filepath.Join(dir, "build.1.log"), "third\n"},
		{filepath.Join(dir, "build.2.log"), "second\n"},
	}
	for _, tt := range tests {
		content, err := os.ReadFile(tt.path)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", tt.path, err)
		}
		if string(content) != tt.want {
			t.Errorf("%s = %q, want %q", filepath.Base(tt.path), content, tt.want)
		}
	}

	// "first" fell off the end
	if _, err := os.Stat(filepath.Join(dir, "build.3.log")); !os.IsNotExist(err) {
		t.Error("found a third backup with maxBackups=2")
	}
}

func TestRotatingFileWriter_NoBackups(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "build.log")
	w, err := NewRotatingFileWriter(logFile, 8, 0)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter() error = %v", err)
	}
	defer w.Close()

	_, _ = w.Write([]byte("aaaaaa\n"))
	_, _ = w.Write([]byte("bbbbbb\n"))

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("files = %s, want only build.log", strings.Join(names, ", "))
	}
	content, _ := os.ReadFile(logFile)
	if string(content) != "bbbbbb\n" {
		t.Errorf("content = %q, want the latest record only", content)
	}
}

func TestRotatingFileWriter_OversizedRecord(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "build.log")
	w, err := NewRotatingFileWriter(logFile, 4, 1)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter() error = %v", err)
	}
	defer w.Close()

	big := []byte("a record longer than the limit\n")
	if n, err := w.Write(big); err != nil || n != len(big) {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	content, _ := os.ReadFile(logFile)
	if string(content) != string(big) {
		t.Errorf("content = %q", content)
	}
}

func TestRotatingFileWriter_BackupName(t *testing.T) {
	w := &RotatingFileWriter{filePath: filepath.Join("logs", "pwcdb.log")}
	if got, want := w.backupName(3), filepath.Join("logs", "pwcdb.3.log"); got != want {
		t.Errorf("backupName(3) = %q, want %q", got, want)
	}
}
