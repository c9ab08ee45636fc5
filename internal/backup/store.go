// Package backup stores pre-destruction copies of files with a JSON manifest
// per entry, plus age- and count-based retention.
package backup

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/agentic-tools/agentsync/internal/sync"
	"github.com/agentic-tools/agentsync/internal/utils"
	"github.com/agentic-tools/agentsync/internal/version"
)

const (
	backupSuffix   = ".bak"
	manifestSuffix = ".bak.json"
	gzipSuffix     = ".bak.gz"

	// Backups older than this are gzip-compressed during cleanup; recent ones
	// stay plain so restoring the common case is a single copy.
	compressAfter = 24 * time.Hour
)

// Manifest is the sidecar record written next to every backup.
type Manifest struct {
	ID           string    `json:"id"`
	MachineID    string    `json:"machine_id,omitempty"`
	OriginalPath string    `json:"original_path"`
	Checksum     string    `json:"checksum"`
	Size         int64     `json:"size"`
	ModTime      time.Time `json:"mtime"`
	CreatedAt    time.Time `json:"created_at"`
}

// Entry is one backup on disk, as returned by List.
type Entry struct {
	Manifest   Manifest
	BackupPath string
	Compressed bool
}

// Store implements sync.BackupStore on a flat directory.
type Store struct {
	dir            string
	retentionDays  int
	retentionCount int
	compress       bool
	machineID      string
}

type StoreOptions struct {
	RetentionDays  int
	RetentionCount int
	Compress       bool
}

func NewStore(dir string, opts StoreOptions) (*Store, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	// Machine identity is informational; a failure to read it never blocks
	// backups.
	machine, err := machineid.ProtectedID(strings.ToLower(version.AppName))
	if err != nil {
		slog.Debug("machine id unavailable", "error", err)
		machine = ""
	}

	return &Store{
		dir:            dir,
		retentionDays:  opts.RetentionDays,
		retentionCount: opts.RetentionCount,
		compress:       opts.Compress,
		machineID:      machine,
	}, nil
}

var _ sync.BackupStore = (*Store)(nil)

// Backup copies absPath into the store and writes its manifest. The copy is
// durable before Backup returns; callers may destroy the original afterwards.
func (s *Store) Backup(absPath string) (string, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", absPath, err)
	}

	checksum, err := sync.ChecksumFile(absPath)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", absPath, err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	name := fmt.Sprintf("%s.%s.%s%s",
		filepath.Base(absPath), now.Format("20060102T150405"), id[:8], backupSuffix)
	backupPath := filepath.Join(s.dir, name)

	if err := copyFile(absPath, backupPath); err != nil {
		return "", fmt.Errorf("copy backup: %w", err)
	}

	manifest := Manifest{
		ID:           id,
		MachineID:    s.machineID,
		OriginalPath: absPath,
		Checksum:     checksum,
		Size:         info.Size(),
		ModTime:      info.ModTime().UTC(),
		CreatedAt:    now,
	}
	if err := s.writeManifest(manifestPathFor(backupPath), manifest); err != nil {
		os.Remove(backupPath)
		return "", err
	}

	slog.Debug("backed up", "path", absPath, "backup", backupPath)
	return backupPath, nil
}

// List returns every backup in the store, newest first.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var out []Entry
	for _, entry := range entries {
		name := entry.Name()
		compressed := strings.HasSuffix(name, gzipSuffix)
		if !compressed && !strings.HasSuffix(name, backupSuffix) {
			continue
		}

		backupPath := filepath.Join(s.dir, name)
		manifest, err := s.readManifest(manifestPathFor(backupPath))
		if err != nil {
			slog.Warn("skipping backup with unreadable manifest", "backup", name, "error", err)
			continue
		}
		out = append(out, Entry{Manifest: manifest, BackupPath: backupPath, Compressed: compressed})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Manifest.CreatedAt.After(out[j].Manifest.CreatedAt)
	})
	return out, nil
}

// PurgeExpired enforces retention: entries past the age limit go first, then
// any beyond the per-file count limit, newest kept. Surviving old entries get
// compressed when compression is enabled. Returns how many entries were removed.
func (s *Store) PurgeExpired() (int, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -s.retentionDays)
	removed := 0

	perOriginal := make(map[string]int)
	for _, entry := range entries {
		expired := s.retentionDays > 0 && entry.Manifest.CreatedAt.Before(cutoff)

		perOriginal[entry.Manifest.OriginalPath]++
		overCount := s.retentionCount > 0 && perOriginal[entry.Manifest.OriginalPath] > s.retentionCount

		if expired || overCount {
			if err := s.remove(entry); err != nil {
				slog.Warn("failed to remove expired backup", "backup", entry.BackupPath, "error", err)
				continue
			}
			removed++
			continue
		}

		if s.compress && !entry.Compressed && now.Sub(entry.Manifest.CreatedAt) > compressAfter {
			if err := s.compressEntry(entry); err != nil {
				slog.Warn("failed to compress backup", "backup", entry.BackupPath, "error", err)
			}
		}
	}
	return removed, nil
}

func (s *Store) remove(entry Entry) error {
	if err := os.Remove(entry.BackupPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(manifestPathFor(entry.BackupPath)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) compressEntry(entry Entry) error {
	src, err := os.Open(entry.BackupPath)
	if err != nil {
		return err
	}
	defer src.Close()

	gzPath := strings.TrimSuffix(entry.BackupPath, backupSuffix) + gzipSuffix
	dst, err := os.Create(gzPath)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		dst.Close()
		os.Remove(gzPath)
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(gzPath)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(gzPath)
		return err
	}

	// The manifest keeps its name, keyed off the plain backup path, so both
	// forms resolve to the same sidecar.
	if err := os.Remove(entry.BackupPath); err != nil {
		return err
	}
	slog.Debug("compressed backup", "backup", gzPath)
	return nil
}

func (s *Store) writeManifest(path string, manifest Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (s *Store) readManifest(path string) (Manifest, error) {
	var manifest Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest, err
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return manifest, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return manifest, nil
}

// manifestPathFor maps a backup file, compressed or not, to its sidecar.
func manifestPathFor(backupPath string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(backupPath, gzipSuffix), backupSuffix)
	return base + manifestSuffix
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	// The backup must survive a crash that happens before the destructive
	// action it covers.
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
