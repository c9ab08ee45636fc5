package sync

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const fingerprintCacheSize = 8192

// cachedSum lets a rescan skip hashing files whose size and mtime are
// untouched since the previous pass. The checksum in the returned fingerprint
// always covers full content; the cache only short-circuits recomputation.
type cachedSum struct {
	size     int64
	modTime  time.Time
	checksum string
}

// Fingerprinter computes content checksums with a metadata-keyed cache.
// Safe for concurrent use.
type Fingerprinter struct {
	cache *lru.Cache[string, cachedSum]
}

func NewFingerprinter() *Fingerprinter {
	cache, _ := lru.New[string, cachedSum](fingerprintCacheSize)
	return &Fingerprinter{cache: cache}
}

// File fingerprints one file. rel must be the forward-slash path relative to
// the tree root; abs is the file on disk.
func (f *Fingerprinter) File(abs, rel string) (*FileFingerprint, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("fingerprint %s: is a directory", abs)
	}

	if prev, ok := f.cache.Get(abs); ok && prev.size == info.Size() && prev.modTime.Equal(info.ModTime()) {
		return &FileFingerprint{
			Path:     rel,
			Checksum: prev.checksum,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		}, nil
	}

	sum, err := ChecksumFile(abs)
	if err != nil {
		return nil, err
	}

	f.cache.Add(abs, cachedSum{size: info.Size(), modTime: info.ModTime(), checksum: sum})

	return &FileFingerprint{
		Path:     rel,
		Checksum: sum,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	}, nil
}

// ChecksumFile hashes the full content of the file at path and returns the
// algorithm-tagged hex digest. Same bytes produce the same checksum on every
// platform and run.
func ChecksumFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%s%x", ChecksumPrefix, h.Sum(nil)), nil
}
