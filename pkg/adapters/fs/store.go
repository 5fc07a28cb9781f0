// Package fs implements a document store and event source backed by a
// directory of markdown files, one file per document:
//
//	<root>/<wiki>/<Space>/<Nested>/<Name>.md
//
// Comments and user profiles are objects declared in the file's frontmatter.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/commentmail/pkg/core"
)

const (
	// Extension is the file extension of document files.
	Extension = ".md"
	// DefaultPattern selects the files watched for changes.
	DefaultPattern = "**/*" + Extension
	// DefaultDebounce coalesces bursts of writes to the same file.
	DefaultDebounce = 50 * time.Millisecond

	tempFilePrefix = ".commentmail-tmp-"
)

// Config holds the configuration for the filesystem store.
type Config struct {
	Root        string
	DefaultWiki string
	ReadOnly    bool
	Logger      *slog.Logger
	// Pattern is a doublestar glob, relative to Root, selecting watched files.
	Pattern  string
	Debounce time.Duration
}

// Store reads documents from a directory tree.
type Store struct {
	root     string
	wiki     string
	readOnly bool
	pattern  string
	debounce time.Duration
	logger   *slog.Logger

	mu            sync.RWMutex
	watcherActive bool
	lastEvent     *time.Time
	emitted       uint64
}

var (
	_ core.DocumentStore = (*Store)(nil)
	_ core.EventSource   = (*Store)(nil)
)

// NewStore validates cfg and returns a Store rooted at cfg.Root.
func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, errors.New("store root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root %s is not a directory", root)
	}

	if cfg.DefaultWiki == "" {
		cfg.DefaultWiki = core.DefaultWiki
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("invalid watch pattern %q", cfg.Pattern)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Store{
		root:     root,
		wiki:     cfg.DefaultWiki,
		readOnly: cfg.ReadOnly,
		pattern:  cfg.Pattern,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}, nil
}

// Root returns the absolute directory the store reads from.
func (s *Store) Root() string { return s.root }

// Probe checks that the root is still a readable directory.
func (s *Store) Probe() error {
	if _, err := os.ReadDir(s.root); err != nil {
		return fmt.Errorf("store root: %w", err)
	}
	return nil
}

// GetDocument implements core.DocumentStore.
func (s *Store) GetDocument(ctx context.Context, ref core.DocumentReference) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}
	path, err := s.pathFor(ref)
	if err != nil {
		return core.Document{}, err
	}
	return s.load(path, ref)
}

// GetDocumentByName implements core.DocumentStore.
func (s *Store) GetDocumentByName(ctx context.Context, name string) (core.Document, error) {
	ref, err := core.ParseDocumentReference(name, s.wiki)
	if err != nil {
		return core.Document{}, err
	}
	return s.GetDocument(ctx, ref)
}

// Save writes doc to its file, creating spaces as needed.
func (s *Store) Save(ctx context.Context, doc core.Document) error {
	if s.readOnly {
		return core.ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(doc.Reference)
	if err != nil {
		return err
	}
	data, err := serializeDocument(doc)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", doc.Reference, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create space directory: %w", err)
	}
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return err
	}
	s.logger.Debug("document saved", "document", doc.Reference.String(), "path", path)
	return nil
}

func (s *Store) load(path string, ref core.DocumentReference) (core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.Document{}, fmt.Errorf("%w: %s", core.ErrNotFound, ref)
		}
		return core.Document{}, fmt.Errorf("read %s: %w", ref, err)
	}
	doc, err := parseDocument(bytes.NewReader(data), ref)
	if err != nil {
		return core.Document{}, fmt.Errorf("parse %s: %w", ref, err)
	}
	return doc, nil
}

// pathFor maps a reference to its file. Nested spaces become nested directories.
func (s *Store) pathFor(ref core.DocumentReference) (string, error) {
	if ref.Wiki == "" || ref.Space == "" || ref.Name == "" {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidReference, ref.String())
	}
	segs := ref.Segments()
	for _, seg := range segs {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `/\`) {
			return "", fmt.Errorf("%w: %q", core.ErrInvalidReference, ref.String())
		}
	}
	segs[len(segs)-1] += Extension
	return filepath.Join(append([]string{s.root}, segs...)...), nil
}

// referenceFor is the inverse of pathFor. It needs at least wiki/space/name.
func (s *Store) referenceFor(path string) (core.DocumentReference, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return core.DocumentReference{}, err
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasSuffix(rel, Extension) || strings.HasPrefix(rel, "../") {
		return core.DocumentReference{}, fmt.Errorf("%w: %s is not a document file", core.ErrInvalidReference, path)
	}
	segs := strings.Split(strings.TrimSuffix(rel, Extension), "/")
	if len(segs) < 3 {
		return core.DocumentReference{}, fmt.Errorf("%w: %s needs wiki/space/name", core.ErrInvalidReference, rel)
	}
	return core.DocumentReference{
		Wiki:  segs[0],
		Space: strings.Join(segs[1:len(segs)-1], "."),
		Name:  segs[len(segs)-1],
	}, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it over filename.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(filename), tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpFile.Name(), perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}
