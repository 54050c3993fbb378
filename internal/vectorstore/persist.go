package vectorstore

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/timeless-residents/handson-line-works/internal/document"
)

// schemaVersion guards the on-disk layout. Loading a file with a different
// version fails instead of being assumed compatible.
const schemaVersion = 1

// indexFile is the JSON document-store half of the persisted artifact pair.
type indexFile struct {
	Version   int              `json:"version"`
	Dimension int              `json:"dimension"`
	Documents []document.Chunk `json:"documents"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// vectorFile is the gob-encoded embedding half of the artifact pair.
type vectorFile struct {
	Version    int
	Dimension  int
	Embeddings [][]float32
}

func vectorPath(path string) string {
	return path + ".vec"
}

// Save persists the index as an artifact pair: the ordered document list with
// the dimension at path, and the ordered embeddings at path+".vec". Each file
// is written to a temporary location and atomically renamed so a crash
// mid-write never leaves a corrupted file visible.
func (ix *FlatIndex) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	docs, err := json.Marshal(indexFile{
		Version:   schemaVersion,
		Dimension: ix.dimension,
		Documents: ix.documents,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("%w: marshal documents: %v", ErrPersistence, err)
	}
	if err := atomicWrite(path, docs); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := atomicWriteGob(vectorPath(path), vectorFile{
		Version:    schemaVersion,
		Dimension:  ix.dimension,
		Embeddings: ix.embeddings,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Load reads an index previously written by Save. Both halves of the artifact
// pair must be present and mutually consistent. A missing file yields
// ErrIndexNotFound; a malformed or inconsistent pair yields ErrPersistence.
// The caller must explicitly choose to create a fresh index on failure.
func Load(path string) (*FlatIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	var docs indexFile
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%w: decode documents: %v", ErrPersistence, err)
	}
	if docs.Version != schemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrPersistence, docs.Version)
	}

	vf, err := os.Open(vectorPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, vectorPath(path))
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer vf.Close()

	var vectors vectorFile
	if err := gob.NewDecoder(vf).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decode vectors: %v", ErrPersistence, err)
	}
	if vectors.Version != schemaVersion {
		return nil, fmt.Errorf("%w: unsupported vector schema version %d", ErrPersistence, vectors.Version)
	}

	if len(docs.Documents) != len(vectors.Embeddings) || docs.Dimension != vectors.Dimension {
		return nil, fmt.Errorf("%w: artifact pair inconsistent: %d documents, %d embeddings",
			ErrPersistence, len(docs.Documents), len(vectors.Embeddings))
	}
	for i, emb := range vectors.Embeddings {
		if len(emb) != docs.Dimension {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d",
				ErrPersistence, i, len(emb), docs.Dimension)
		}
	}

	return &FlatIndex{
		documents:  docs.Documents,
		embeddings: vectors.Embeddings,
		dimension:  docs.Dimension,
	}, nil
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func atomicWriteGob(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
