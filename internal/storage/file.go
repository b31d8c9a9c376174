package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"openamm/internal/model"
)

// FileStore keeps one JSON file per pool under Dir.
type FileStore struct {
	Dir string

	mu sync.Mutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

type poolRecord struct {
	Pool      model.Pool `json:"pool"`
	UpdatedAt string     `json:"updated_at"`
}

func (s *FileStore) path(addr common.Address) string {
	return filepath.Join(s.Dir, strings.ToLower(addr.Hex())+".json")
}

func (s *FileStore) Load(_ context.Context, addr common.Address) (model.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return model.Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, addr.Hex())
		}
		return model.Pool{}, fmt.Errorf("read pool: %w", err)
	}
	var rec poolRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.Pool{}, fmt.Errorf("parse pool: %w", err)
	}
	return rec.Pool, nil
}

// Save writes the record through a temp file and rename so a crash never
// leaves a torn pool on disk.
func (s *FileStore) Save(_ context.Context, pool model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create pool dir: %w", err)
	}
	rec := poolRecord{
		Pool:      pool,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pool: %w", err)
	}

	path := s.path(pool.Address)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write pool tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename pool: %w", err)
	}
	return nil
}

func (s *FileStore) List(_ context.Context) ([]common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list pools: %w", err)
	}
	var out []common.Address
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		hex := strings.TrimSuffix(name, ".json")
		if !common.IsHexAddress(hex) {
			continue
		}
		out = append(out, common.HexToAddress(hex))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out, nil
}

var _ PoolStore = (*FileStore)(nil)
