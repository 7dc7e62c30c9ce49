package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestHashReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "Empty", input: "", want: "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
		{name: "abc", input: "abc", want: "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{name: "Larger than one chunk", input: strings.Repeat("x", chunkSize*2+17), want: sha1Hex(strings.Repeat("x", chunkSize*2+17))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := HashReader(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("HashReader failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestHashReaderError(t *testing.T) {
	t.Parallel()

	if _, err := HashReader(iotest.ErrReader(os.ErrClosed)); err == nil {
		t.Error("Expected error from failing reader")
	}
}

func TestHashFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "page.png")
	if err := os.WriteFile(path, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if got != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Errorf("Unexpected hash %s", got)
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	first, last := sha1Hex("first"), sha1Hex("last")

	got := Identity(first, last, 3)
	if want := sha1Hex(first + last + "3"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	if Identity(first, last, 4) == got {
		t.Error("Expected identity to change with file count")
	}
	if Identity(last, first, 3) == got {
		t.Error("Expected identity to depend on order of first and last")
	}
	if Identity(first, last, 3) != got {
		t.Error("Expected identity to be deterministic")
	}
}

func TestMtimeHash(t *testing.T) {
	t.Parallel()

	base := time.Unix(1700000000, 123456789)
	a := Stamp{ModTime: base, Size: 100}
	b := Stamp{ModTime: base.Add(time.Second), Size: 200}

	want := sha1Hex("1700000000123456789" + "100" + "1700000001123456789" + "200")
	if got := MtimeHash(a, b); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	tests := []struct {
		name    string
		changed Stamp
	}{
		{name: "Size change", changed: Stamp{ModTime: base, Size: 101}},
		{name: "Nanosecond change", changed: Stamp{ModTime: base.Add(time.Nanosecond), Size: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if MtimeHash(tt.changed, b) == MtimeHash(a, b) {
				t.Error("Expected mtime hash to change")
			}
		})
	}
}

func TestStampOf(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.jpg")
	if err := os.WriteFile(path, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	s := StampOf(info)
	if s.Size != 5 {
		t.Errorf("Expected size 5, got %d", s.Size)
	}
	if !s.ModTime.Equal(info.ModTime()) {
		t.Errorf("Expected mod time %v, got %v", info.ModTime(), s.ModTime)
	}
}
