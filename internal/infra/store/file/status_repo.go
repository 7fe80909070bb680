// Package file keeps the status document in a flat JSON file.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/repository"
)

var _ repository.StatusRepository = (*StatusRepo)(nil)

// StatusRepo reads and writes one JSON document. Writes go through a temp
// file and a rename so a crash never leaves a half-written document behind.
type StatusRepo struct {
	path string
	mu   sync.Mutex
}

func NewStatusRepo(path string) *StatusRepo {
	return &StatusRepo{path: path}
}

func (r *StatusRepo) Path() string { return r.path }

func (r *StatusRepo) Load(ctx context.Context) (*model.StatusDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewStatusDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return model.NewStatusDocument(), nil
	}
	return Decode(b)
}

func (r *StatusRepo) Save(ctx context.Context, doc *model.StatusDocument) error {
	b, err := Encode(doc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace status: %w", err)
	}
	return nil
}

// Encode renders the document the way it is stored on disk: 4-space indent,
// UTF-8 kept as is, trailing newline.
func Encode(doc *model.StatusDocument) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode status: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a stored document; malformed input yields domain.ErrCorruptStatus.
func Decode(b []byte) (*model.StatusDocument, error) {
	doc := model.NewStatusDocument()
	if err := json.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptStatus, err)
	}
	if doc.Countries == nil {
		doc.Countries = model.Countries{}
	}
	return doc, nil
}
