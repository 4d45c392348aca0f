package bytesource

import (
	"os"
	"testing"
)

func writeFixture(t *testing.T, contents string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "bytesource-*.bin")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(contents); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestOpenReportsSize(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "0123456789")
	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	size, err := src.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 10 {
		t.Fatalf("Size = %d, want 10", size)
	}
}

func TestSeekSetCurEnd(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "0123456789")
	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	tests := []struct {
		name       string
		offset     int64
		whence     Whence
		wantOffset int64
	}{
		{"set", 3, SeekSet, 3},
		{"cur", 2, SeekCur, 5},
		{"end", -2, SeekEnd, 8},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Seek(tt.offset, tt.whence)
			if err != nil {
				t.Fatalf("Seek: %v", err)
			}
			if got != tt.wantOffset {
				t.Fatalf("Seek(%d, %v) = %d, want %d", tt.offset, tt.whence, got, tt.wantOffset)
			}
		})
	}
}

func TestReadAfterSeek(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "0123456789")
	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if _, err := src.Seek(5, SeekSet); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 3)
	n, err := src.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "567" {
		t.Fatalf("Read = %q, want %q", buf[:n], "567")
	}
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Open("/nonexistent/path/reelcore-test"); err == nil {
		t.Fatal("Open succeeded for a missing file, want error")
	}
}
