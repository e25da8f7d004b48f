package certificates

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidArchive is returned when the uploaded archive cannot be
	// extracted: corrupt file, unsupported format, or one that exceeds the
	// configured entry/size ceilings.
	ErrInvalidArchive = errors.New("invalid or unsupported archive")
	// ErrNotStaged is returned when a named file is absent from the staging area.
	ErrNotStaged = errors.New("file is not staged")
)

// StagedFile is one regular file in an event's staging area.
type StagedFile struct {
	Name string
	Size int64
}

// Staging owns the per-event filesystem area holding extracted certificate
// files that are not yet matched or durably stored. Archive entries are
// flattened to their base name on extraction, so a staged file is always
// addressed by a single path segment.
type Staging struct {
	root       string
	maxEntries int
	maxBytes   int64
}

// NewStaging creates a staging manager rooted at dir. maxEntries and
// maxBytes bound archive extraction (zip-bomb protection); zero values
// disable the respective cap.
func NewStaging(dir string, maxEntries int, maxBytes int64) *Staging {
	return &Staging{root: dir, maxEntries: maxEntries, maxBytes: maxBytes}
}

func (s *Staging) eventDir(eventID uuid.UUID) string {
	return filepath.Join(s.root, eventID.String())
}

// validName rejects names that could address anything outside the event dir.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name
}

// Clear removes the event's entire staging area. A fresh bulk upload
// replaces any prior incomplete batch.
func (s *Staging) Clear(eventID uuid.UUID) error {
	return os.RemoveAll(s.eventDir(eventID))
}

// Extract unpacks the archive at archivePath into the event's staging area.
// Directory entries are skipped; file entries are flattened to their base
// name. Entries with invalid names, or archives exceeding the entry or
// uncompressed-size ceilings, fail the whole extraction.
func (s *Staging) Extract(eventID uuid.UUID, archivePath string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidArchive, err)
	}
	defer zr.Close()

	if s.maxEntries > 0 && len(zr.File) > s.maxEntries {
		return fmt.Errorf("%w: too many entries (%d)", ErrInvalidArchive, len(zr.File))
	}
	var declared int64
	for _, f := range zr.File {
		declared += int64(f.UncompressedSize64)
	}
	if s.maxBytes > 0 && declared > s.maxBytes {
		return fmt.Errorf("%w: uncompressed size %d exceeds limit", ErrInvalidArchive, declared)
	}

	dir := s.eventDir(eventID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	remaining := s.maxBytes
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(filepath.ToSlash(f.Name))
		if !validName(name) || strings.HasPrefix(name, ".") {
			return fmt.Errorf("%w: unsafe entry name %q", ErrInvalidArchive, f.Name)
		}
		written, err := s.extractFile(f, filepath.Join(dir, name), remaining)
		if err != nil {
			return err
		}
		if s.maxBytes > 0 {
			remaining -= written
		}
	}
	return nil
}

// extractFile copies one entry to dest, bounding actual bytes written so a
// lying size header cannot bypass the ceiling.
func (s *Staging) extractFile(f *zip.File, dest string, remaining int64) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: open entry %q: %s", ErrInvalidArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create staged file: %w", err)
	}
	defer out.Close()

	var src io.Reader = rc
	if s.maxBytes > 0 {
		src = io.LimitReader(rc, remaining+1)
	}
	written, err := io.Copy(out, src)
	if err != nil {
		return written, fmt.Errorf("%w: extract %q: %s", ErrInvalidArchive, f.Name, err)
	}
	if s.maxBytes > 0 && written > remaining {
		return written, fmt.Errorf("%w: uncompressed size exceeds limit", ErrInvalidArchive)
	}
	return written, nil
}

// List returns the staged regular files for an event, sorted by name so
// batch processing is deterministic. A missing staging area is an empty list.
func (s *Staging) List(eventID uuid.UUID) ([]StagedFile, error) {
	entries, err := os.ReadDir(s.eventDir(eventID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read staging dir: %w", err)
	}
	var files []StagedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, StagedFile{Name: e.Name(), Size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Open returns a staged file for reading along with its size.
func (s *Staging) Open(eventID uuid.UUID, name string) (*os.File, int64, error) {
	if !validName(name) {
		return nil, 0, ErrNotStaged
	}
	path := filepath.Join(s.eventDir(eventID), name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, 0, ErrNotStaged
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open staged file: %w", err)
	}
	return f, info.Size(), nil
}

// Path returns the on-disk path of a staged file, for direct serving.
func (s *Staging) Path(eventID uuid.UUID, name string) (string, error) {
	if !validName(name) {
		return "", ErrNotStaged
	}
	path := filepath.Join(s.eventDir(eventID), name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotStaged
	}
	return path, nil
}

// Remove deletes one staged file.
func (s *Staging) Remove(eventID uuid.UUID, name string) error {
	if !validName(name) {
		return ErrNotStaged
	}
	return os.Remove(filepath.Join(s.eventDir(eventID), name))
}

// RemoveIfEmpty removes the event's staging dir when no files remain.
// Housekeeping only; callers tolerate failure.
func (s *Staging) RemoveIfEmpty(eventID uuid.UUID) error {
	files, err := s.List(eventID)
	if err != nil || len(files) > 0 {
		return err
	}
	return os.Remove(s.eventDir(eventID))
}
