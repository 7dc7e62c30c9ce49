package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"
)

// chunkSize is the read size used when streaming content into the hash.
const chunkSize = 65536

// HashReader returns the hex SHA-1 of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := sha1.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to hash content: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the hex SHA-1 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return HashReader(f)
}

// Identity combines the first and last content hashes with the file count.
func Identity(firstHash, lastHash string, fileCount int) string {
	sum := sha1.Sum([]byte(firstHash + lastHash + strconv.Itoa(fileCount)))
	return hex.EncodeToString(sum[:])
}

// Stamp is the change-detection input for one file.
type Stamp struct {
	ModTime time.Time
	Size    int64
}

// StampOf captures the stamp of a stat result.
func StampOf(info fs.FileInfo) Stamp {
	return Stamp{ModTime: info.ModTime(), Size: info.Size()}
}

// MtimeHash hashes modification time (nanoseconds) and size of each stamp in order.
func MtimeHash(stamps ...Stamp) string {
	h := sha1.New()
	for _, s := range stamps {
		h.Write([]byte(strconv.FormatInt(s.ModTime.UnixNano(), 10)))
		h.Write([]byte(strconv.FormatInt(s.Size, 10)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
