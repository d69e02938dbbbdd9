package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"turtle_bot/internal/models"
)

// FileStore хранит снапшот в одном json-файле. Контрольная сумма
// защищает от чтения битого/недописанного файла.
type FileStore struct {
	mu    sync.Mutex
	path  string
	jpath string // журнал сделок, jsonl
}

type fileEnvelope struct {
	Checksum string          `json:"checksum"`
	Payload  json.RawMessage `json:"payload"`
}

func NewFileStore(path string) *FileStore {
	jpath := strings.TrimSuffix(path, filepath.Ext(path)) + "_trades.jsonl"
	return &FileStore{path: path, jpath: jpath}
}

func (s *FileStore) Save(_ context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.LastUpdated = time.Now().UTC()
	payload, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	env, err := sonic.Marshal(fileEnvelope{
		Checksum: checksum(payload),
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}

	// пишем во временный файл и переименовываем, чтобы не оставить
	// полузаписанный снапшот
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, env, 0o644); err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}
	return nil
}

// Load читает снапшот. Отсутствующий файл — чистый старт, битый —
// ErrStateCorruption: тут решает оператор, не код.
func (s *FileStore) Load(_ context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return models.NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("FileStore.Load: %w", err)
	}

	var env fileEnvelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("FileStore.Load: %w: %v", models.ErrStateCorruption, err)
	}
	if checksum(env.Payload) != env.Checksum {
		return nil, fmt.Errorf("FileStore.Load: %w: checksum mismatch", models.ErrStateCorruption)
	}

	var snap models.Snapshot
	if err := sonic.Unmarshal(env.Payload, &snap); err != nil {
		return nil, fmt.Errorf("FileStore.Load: %w: %v", models.ErrStateCorruption, err)
	}
	if snap.Positions == nil {
		snap = *models.NewSnapshot()
	}
	return &snap, nil
}

func (s *FileStore) AppendTrade(_ context.Context, trade models.ClosedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := sonic.Marshal(trade)
	if err != nil {
		return fmt.Errorf("FileStore.AppendTrade: %w", err)
	}
	f, err := os.OpenFile(s.jpath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("FileStore.AppendTrade: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("FileStore.AppendTrade: %w", err)
	}
	return nil
}

func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
