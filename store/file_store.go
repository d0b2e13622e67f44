package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
	"github.com/josephgoksu/plantrack/models"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"

	checksumSuffix = ".checksum"
	lockFileName   = ".plantrack.lock"
)

// FileStore implements PlanStore with one file per plan (<id>.<format>) in a
// directory. Every data file has a sha256 checksum sidecar that is verified
// on load. Writes go through temp files and renames.
//
// On the OS filesystem a gofrs/flock lock on the directory serializes
// writers across processes; a mutex does the same inside one process.
type FileStore struct {
	fs     afero.Fs
	dir    string
	format string

	mu  sync.Mutex
	flk *flock.Flock // nil unless fs is the OS filesystem
}

// NewFileStore creates the directory if needed. format is json, yaml or toml.
func NewFileStore(fsys afero.Fs, dir, format string) (*FileStore, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	format = strings.ToLower(format)
	if format == "" {
		format = FormatJSON
	}
	switch format {
	case FormatJSON, FormatYAML, FormatTOML:
	default:
		return nil, fmt.Errorf("unsupported plan file format: %s. Supported formats are json, yaml, toml", format)
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	s := &FileStore{fs: fsys, dir: dir, format: format}
	if _, ok := fsys.(*afero.OsFs); ok {
		s.flk = flock.New(filepath.Join(dir, lockFileName))
	}
	return s, nil
}

// Format returns the encoding used for plan files.
func (s *FileStore) Format() string { return s.format }

func (s *FileStore) lock() (func(), error) {
	s.mu.Lock()
	if s.flk != nil {
		if err := s.flk.Lock(); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("could not lock %s: %w", s.dir, err)
		}
	}
	return func() {
		if s.flk != nil {
			_ = s.flk.Unlock()
		}
		s.mu.Unlock()
	}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if !models.ValidPlanID(id) {
		return "", fmt.Errorf("invalid plan id %q", id)
	}
	return filepath.Join(s.dir, id+"."+s.format), nil
}

// calculateChecksum computes the SHA256 checksum of the given data.
func calculateChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Load implements PlanStore.
func (s *FileStore) Load(ctx context.Context, id string) (*models.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	return s.readFile(path)
}

func (s *FileStore) readFile(path string) (*models.Plan, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSuffix(filepath.Base(path), "."+s.format))
		}
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}

	// A missing checksum is tolerated (hand-written file); a wrong one is not.
	expected, err := afero.ReadFile(s.fs, path+checksumSuffix)
	switch {
	case err == nil:
		if actual := calculateChecksum(data); actual != strings.TrimSpace(string(expected)) {
			return nil, fmt.Errorf("checksum mismatch for %s - expected %s, got %s - file is corrupt or tampered", path, strings.TrimSpace(string(expected)), actual)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("error checking checksum file %s: %w", path+checksumSuffix, err)
	}

	plan, err := decode(s.format, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return plan, nil
}

// Save implements PlanStore.
func (s *FileStore) Save(ctx context.Context, plan *models.Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(plan.ID)
	if err != nil {
		return err
	}
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.readFile(path)
	switch {
	case err == nil:
		if err := CheckRevision(true, current.Metadata.Revision, plan); err != nil {
			return fmt.Errorf("%w: %s is at revision %d", err, plan.ID, current.Metadata.Revision)
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	data, err := encode(s.format, plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan %s to %s: %w", plan.ID, s.format, err)
	}
	return s.writeAtomic(path, data)
}

// writeAtomic writes data and its checksum to temp files, then renames
// both into place, data first.
func (s *FileStore) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	sumPath := path + checksumSuffix
	sumTmp := sumPath + ".tmp"
	defer func() { _ = s.fs.Remove(tmp) }()
	defer func() { _ = s.fs.Remove(sumTmp) }()

	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary data file %s: %w", tmp, err)
	}
	if err := afero.WriteFile(s.fs, sumTmp, []byte(calculateChecksum(data)), 0o644); err != nil {
		return fmt.Errorf("failed to write temporary checksum file %s: %w", sumTmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tmp, path, err)
	}
	if err := s.fs.Rename(sumTmp, sumPath); err != nil {
		return fmt.Errorf("data file %s updated but checksum %s was not: %w", path, sumPath, err)
	}
	return nil
}

// List implements PlanStore.
func (s *FileStore) List(ctx context.Context) ([]*models.Plan, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.dir, err)
	}
	ext := "." + s.format
	plans := []*models.Plan{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p, err := s.readFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans, nil
}

// Delete implements PlanStore.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(id)
	if err != nil {
		return err
	}
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if ok, _ := afero.Exists(s.fs, path); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	_ = s.fs.Remove(path + checksumSuffix)
	return nil
}

// Close implements PlanStore. Locks are only held during calls, so there is
// nothing to release beyond the lock file handle.
func (s *FileStore) Close() error {
	if s.flk != nil {
		return s.flk.Close()
	}
	return nil
}

func encode(format string, plan *models.Plan) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(plan, "", "  ")
	case FormatYAML:
		return yaml.Marshal(plan)
	case FormatTOML:
		buf := new(bytes.Buffer)
		if err := toml.NewEncoder(buf).Encode(plan); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported data format: %s", format)
}

func decode(format string, data []byte) (*models.Plan, error) {
	var plan models.Plan
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &plan)
	case FormatYAML:
		err = yaml.Unmarshal(data, &plan)
	case FormatTOML:
		_, err = toml.Decode(string(data), &plan)
	default:
		err = fmt.Errorf("unsupported data format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

var _ PlanStore = (*FileStore)(nil)
