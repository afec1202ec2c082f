package index

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"pdfrag/internal/domain"
)

// DBFile is the bbolt file inside an index directory.
const DBFile = "index.db"

var (
	bucketMeta     = []byte("meta")
	bucketChunks   = []byte("chunks")
	bucketVectors  = []byte("vectors")
	bucketEmbedder = []byte("embedder")

	keyManifest = []byte("manifest")
	keyState    = []byte("state")
)

// Save writes the index to dir. The data goes into a sibling temporary
// directory that is renamed into place once complete, so dir either keeps
// its previous content or holds the new index.
func (ix *Index) Save(dir string) error {
	if ix.Len() == 0 {
		return domain.NewError(domain.KindIndexBuild, "refusing to save an empty index", nil)
	}
	dir = filepath.Clean(dir)
	if err := checkReplaceable(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return domain.NewError(domain.KindIndexBuild, "create index parent directory", err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".tmp-")
	if err != nil {
		return domain.NewError(domain.KindIndexBuild, "create temporary index directory", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := ix.writeDB(filepath.Join(tmp, DBFile)); err != nil {
		return domain.NewError(domain.KindIndexBuild, "write index", err)
	}
	if err := swapDir(tmp, dir); err != nil {
		return domain.NewError(domain.KindIndexBuild, "move index into place", err)
	}
	committed = true
	return nil
}

// checkReplaceable refuses to overwrite anything that is not a previous index.
func checkReplaceable(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return domain.NewError(domain.KindIndexBuild, "stat index path", err)
	}
	if !info.IsDir() {
		return domain.NewError(domain.KindIndexBuild, fmt.Sprintf("index path %s is a file", dir), nil)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return domain.NewError(domain.KindIndexBuild, "read index path", err)
	}
	if len(entries) == 0 {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dir, DBFile)); err != nil {
		return domain.NewError(domain.KindIndexBuild,
			fmt.Sprintf("%s exists and does not contain an index", dir), nil).
			WithHint("choose another index path or remove the directory")
	}
	return nil
}

func swapDir(tmp, dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return os.Rename(tmp, dir)
	}
	backup := tmp + ".old"
	if err := os.Rename(dir, backup); err != nil {
		return err
	}
	if err := os.Rename(tmp, dir); err != nil {
		_ = os.Rename(backup, dir)
		return err
	}
	return os.RemoveAll(backup)
}

func (ix *Index) writeDB(path string) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		chunks, err := tx.CreateBucketIfNotExists(bucketChunks)
		if err != nil {
			return err
		}
		vectors, err := tx.CreateBucketIfNotExists(bucketVectors)
		if err != nil {
			return err
		}
		emb, err := tx.CreateBucketIfNotExists(bucketEmbedder)
		if err != nil {
			return err
		}

		m := ix.Manifest
		m.Version = FormatVersion
		m.Chunks = ix.Len()
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if err := meta.Put(keyManifest, data); err != nil {
			return err
		}
		if len(ix.state) > 0 {
			if err := emb.Put(keyState, ix.state); err != nil {
				return err
			}
		}
		for i, c := range ix.chunks {
			data, err := json.Marshal(c)
			if err != nil {
				return err
			}
			key := seqKey(i)
			if err := chunks.Put(key, data); err != nil {
				return err
			}
			if err := vectors.Put(key, encodeVector(ix.vectors[i])); err != nil {
				return err
			}
		}
		return nil
	})
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	return err
}

// Load reads the index stored in dir. A missing or unreadable index is a
// ResourceNotFound error.
func Load(dir string) (*Index, error) {
	path := filepath.Join(dir, DBFile)
	if _, err := os.Stat(path); err != nil {
		return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("no index found at %s", dir), err).
			WithHint("build one first with: pdfrag index <pdf-folder> " + dir)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("index at %s is unreadable", dir), err)
	}
	defer db.Close()

	ix := &Index{}
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		chunks := tx.Bucket(bucketChunks)
		vectors := tx.Bucket(bucketVectors)
		if meta == nil || chunks == nil || vectors == nil {
			return errors.New("missing buckets")
		}
		data := meta.Get(keyManifest)
		if data == nil {
			return errors.New("missing manifest")
		}
		if err := json.Unmarshal(data, &ix.Manifest); err != nil {
			return fmt.Errorf("decode manifest: %w", err)
		}
		if ix.Manifest.Version != FormatVersion {
			return fmt.Errorf("index format version %d, expected %d", ix.Manifest.Version, FormatVersion)
		}
		if emb := tx.Bucket(bucketEmbedder); emb != nil {
			if s := emb.Get(keyState); s != nil {
				ix.state = append([]byte(nil), s...)
			}
		}
		if err := chunks.ForEach(func(k, v []byte) error {
			var c domain.Chunk
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decode chunk: %w", err)
			}
			raw := vectors.Get(k)
			if raw == nil {
				return fmt.Errorf("chunk %s has no vector", c.ID)
			}
			vec, err := decodeVector(raw)
			if err != nil {
				return err
			}
			ix.chunks = append(ix.chunks, c)
			ix.vectors = append(ix.vectors, vec)
			return nil
		}); err != nil {
			return err
		}
		return ix.validate()
	})
	if err != nil {
		return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("index at %s is unreadable", dir), err)
	}
	return ix, nil
}

func (ix *Index) validate() error {
	if ix.Len() != ix.Manifest.Chunks {
		return fmt.Errorf("manifest lists %d chunks, found %d", ix.Manifest.Chunks, ix.Len())
	}
	dim := ix.Manifest.Embedder.Dimension
	for _, v := range ix.vectors {
		if len(v) != dim {
			return fmt.Errorf("vector dimension %d, manifest dimension %d", len(v), dim)
		}
	}
	return nil
}

// seqKey keeps bbolt's byte order equal to insertion order.
func seqKey(i int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(i))
	return key
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
