// ABOUTME: Artifact store that persists uploaded images under sanitized, collision-resistant names.
// ABOUTME: Files are created exclusively in a dedicated directory and removed again if the write fails.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Reason classifies why an upload could not be stored.
type Reason string

const (
	TransportError Reason = "transport_error"
	EmptyFile      Reason = "empty_file"
	WriteFailure   Reason = "write_failure"
)

// ErrNotFound is returned by Open for names that do not exist in the store.
var ErrNotFound = errors.New("artifact not found")

// ErrInvalidName is returned by Open for names that could not have come from Save.
var ErrInvalidName = errors.New("invalid artifact name")

// UploadError reports a failed Save.
type UploadError struct {
	Reason Reason
	Err    error
}

func (e *UploadError) Error() string {
	switch e.Reason {
	case EmptyFile:
		return "uploaded file is empty"
	case TransportError:
		if e.Err != nil {
			return fmt.Sprintf("upload incomplete: %v", e.Err)
		}
		return "upload incomplete"
	default:
		if e.Err != nil {
			return fmt.Sprintf("could not store upload: %v", e.Err)
		}
		return "could not store upload"
	}
}

func (e *UploadError) Unwrap() error { return e.Err }

// Artifact describes one stored upload. It is never modified after Save returns.
type Artifact struct {
	OriginalName string
	StorageName  string
	Path         string
	Size         int64
	StoredAt     time.Time
}

const (
	namePrefix     = "img_"
	maxNameLength  = 100
	defaultName    = "upload"
	dirPermissions = 0o755
)

var (
	disallowedChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	dotRuns         = regexp.MustCompile(`\.{2,}`)
	storageNameRe   = regexp.MustCompile(`^` + namePrefix + `[0-9A-HJKMNP-TV-Z]{26}-[A-Za-z0-9._-]+$`)
)

// Store writes artifacts into a single directory reserved for uploads.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore returns a store rooted at dir. The directory is created on first Save.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir %q: %w", dir, err)
	}
	return &Store{dir: abs, now: time.Now}, nil
}

// Dir returns the absolute upload directory.
func (s *Store) Dir() string { return s.dir }

// Save copies r into a new file. reportedSize is the length announced by the
// transport; pass -1 when unknown. Exactly one file exists afterwards on success
// and none on failure.
func (s *Store) Save(r io.Reader, originalName string, reportedSize int64) (*Artifact, error) {
	if reportedSize == 0 {
		return nil, &UploadError{Reason: EmptyFile}
	}
	if err := os.MkdirAll(s.dir, dirPermissions); err != nil {
		return nil, &UploadError{Reason: WriteFailure, Err: fmt.Errorf("create upload dir: %w", err)}
	}

	now := s.now()
	storageName := namePrefix + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String() + "-" + Sanitize(originalName)
	path := filepath.Join(s.dir, storageName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &UploadError{Reason: WriteFailure, Err: err}
	}

	n, copyErr := io.Copy(f, readTracker{r: r})
	closeErr := f.Close()

	fail := func(uerr *UploadError) (*Artifact, error) {
		_ = os.Remove(path)
		return nil, uerr
	}

	if copyErr != nil {
		var re *readFailure
		if errors.As(copyErr, &re) {
			return fail(&UploadError{Reason: TransportError, Err: re.err})
		}
		return fail(&UploadError{Reason: WriteFailure, Err: copyErr})
	}
	if closeErr != nil {
		return fail(&UploadError{Reason: WriteFailure, Err: closeErr})
	}
	if n == 0 {
		return fail(&UploadError{Reason: EmptyFile})
	}
	if reportedSize > 0 && n != reportedSize {
		return fail(&UploadError{
			Reason: TransportError,
			Err:    fmt.Errorf("received %d of %d bytes", n, reportedSize),
		})
	}

	return &Artifact{
		OriginalName: originalName,
		StorageName:  storageName,
		Path:         path,
		Size:         n,
		StoredAt:     now,
	}, nil
}

// Open returns a reader for a previously stored artifact.
func (s *Store) Open(storageName string) (*os.File, error) {
	if !ValidStorageName(storageName) {
		return nil, ErrInvalidName
	}
	f, err := os.Open(filepath.Join(s.dir, storageName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", storageName, err)
	}
	return f, nil
}

// Prune removes artifacts stored before now-olderThan and returns how many were deleted.
// Files that do not look like artifacts are left alone.
func (s *Store) Prune(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := s.now().Add(-olderThan)
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !ValidStorageName(e.Name()) {
			continue
		}
		id, err := ulid.ParseStrict(e.Name()[len(namePrefix) : len(namePrefix)+ulid.EncodedSize])
		if err != nil {
			continue
		}
		if ulid.Time(id.Time()).After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Sanitize reduces an uploaded file name to a safe base name.
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = disallowedChars.ReplaceAllString(name, "")
	name = dotRuns.ReplaceAllString(name, ".")
	name = strings.TrimLeft(name, ".")
	if len(name) > maxNameLength {
		name = name[len(name)-maxNameLength:]
		name = strings.TrimLeft(name, ".")
	}
	if name == "" {
		return defaultName
	}
	return name
}

// ValidStorageName reports whether name has the exact shape Save produces.
func ValidStorageName(name string) bool {
	return storageNameRe.MatchString(name) && !strings.Contains(name, "..")
}

// readTracker tags errors that come from the source reader so Save can tell
// transport failures from disk failures.
type readTracker struct {
	r io.Reader
}

type readFailure struct{ err error }

func (e *readFailure) Error() string { return e.err.Error() }
func (e *readFailure) Unwrap() error { return e.err }

func (t readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &readFailure{err: err}
	}
	return n, err
}
