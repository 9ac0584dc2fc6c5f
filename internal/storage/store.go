package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// StoredFile describes an artifact after it has been written to disk
type StoredFile struct {
	Filename string    `json:"filename"`
	Path     string    `json:"path"` // logical path, e.g. /uploads/audio_1700000000000.wav
	DiskPath string    `json:"-"`
	Size     int       `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// Store persists one uploaded artifact
type Store interface {
	Save(ctx context.Context, data []byte) (*StoredFile, error)
}

// Namer derives the filename for the next artifact
type Namer interface {
	Name() string
}

// TimestampNamer names files <prefix><epochMillis><ext>. Two calls within
// the same millisecond return the same name.
type TimestampNamer struct {
	Prefix    string
	Extension string
	Now       func() time.Time
}

// Name implements Namer
func (n TimestampNamer) Name() string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return n.Prefix + strconv.FormatInt(now().UnixMilli(), 10) + n.Extension
}

// UUIDNamer names files <prefix><random uuid><ext>
type UUIDNamer struct {
	Prefix    string
	Extension string
}

// Name implements Namer
func (n UUIDNamer) Name() string {
	return n.Prefix + uuid.NewString() + n.Extension
}

// NewNamer builds the namer selected by strategy ("timestamp" or "uuid")
func NewNamer(strategy, prefix, extension string) (Namer, error) {
	switch strategy {
	case "timestamp", "":
		return TimestampNamer{Prefix: prefix, Extension: extension}, nil
	case "uuid":
		return UUIDNamer{Prefix: prefix, Extension: extension}, nil
	default:
		return nil, fmt.Errorf("unknown naming strategy %q", strategy)
	}
}

// DiskStore writes artifacts verbatim into a single directory
type DiskStore struct {
	dir        string
	publicPath string
	namer      Namer
	now        func() time.Time
}

// Config contains disk store configuration
type Config struct {
	Dir        string
	PublicPath string
	Namer      Namer
	CreateDir  bool
}

// NewDiskStore creates a store rooted at cfg.Dir, creating the directory
// when cfg.CreateDir is set.
func NewDiskStore(cfg Config) (*DiskStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("storage dir cannot be empty")
	}

	if cfg.Namer == nil {
		cfg.Namer = TimestampNamer{Prefix: "audio_", Extension: ".wav"}
	}

	if cfg.PublicPath == "" {
		cfg.PublicPath = "/uploads"
	}

	if cfg.CreateDir {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage dir %s: %w", cfg.Dir, err)
		}
	}

	return &DiskStore{
		dir:        cfg.Dir,
		publicPath: cfg.PublicPath,
		namer:      cfg.Namer,
		now:        time.Now,
	}, nil
}

// Save writes data under a freshly generated name. An existing file with the
// same name is truncated and overwritten.
func (s *DiskStore) Save(ctx context.Context, data []byte) (*StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filename := s.namer.Name()
	diskPath := filepath.Join(s.dir, filename)

	if err := os.WriteFile(diskPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", diskPath, err)
	}

	return &StoredFile{
		Filename: filename,
		Path:     path.Join(s.publicPath, filename),
		DiskPath: diskPath,
		Size:     len(data),
		StoredAt: s.now(),
	}, nil
}

// Dir returns the directory artifacts are written to
func (s *DiskStore) Dir() string {
	return s.dir
}

// PublicPath returns the logical prefix returned to clients
func (s *DiskStore) PublicPath() string {
	return s.publicPath
}
