package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/post-scraper/internal/domain"
)

// JSONFileSink writes the records as one indented JSON array. The file is
// replaced atomically so a reader never sees a partial document.
type JSONFileSink struct {
	Path string
}

func NewJSONFileSink(path string) *JSONFileSink {
	return &JSONFileSink{Path: path}
}

func (s *JSONFileSink) Write(ctx context.Context, b Batch) error {
	staged, err := s.Stage(ctx, b)
	if err != nil {
		return err
	}
	defer staged.Abort()
	return staged.Commit()
}

// StagedFile is an encoded document waiting next to its destination.
type StagedFile struct {
	tmp  string
	dest string
}

// Stage encodes the records into a temp file in the output directory,
// creating the directory if needed. Nothing is visible at Path until Commit.
func (s *JSONFileSink) Stage(ctx context.Context, b Batch) (*StagedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".result-*.json")
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}

	records := b.Records
	if records == nil {
		records = []domain.PostRecord{}
	}

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("encode records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("close temp output: %w", err)
	}
	return &StagedFile{tmp: tmp.Name(), dest: s.Path}, nil
}

// Commit moves the staged document into place.
func (f *StagedFile) Commit() error {
	if err := os.Rename(f.tmp, f.dest); err != nil {
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}

// Abort removes the temp file. It is a no-op after Commit.
func (f *StagedFile) Abort() {
	_ = os.Remove(f.tmp)
}
