package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
)

// FileRewardStore persists bandit posterior state to a JSON file. Writes
// go to a temp file in the same directory followed by a rename, so a crash
// mid-save can never leave a half-written posterior behind.
type FileRewardStore struct {
	path string
}

func NewFileRewardStore(path string) *FileRewardStore {
	return &FileRewardStore{path: path}
}

func (s *FileRewardStore) Load(_ context.Context) (*models.BanditState, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bandit state: %w", err)
	}
	var st models.BanditState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode bandit state: %w", err)
	}
	return &st, nil
}

func (s *FileRewardStore) Save(_ context.Context, st *models.BanditState) error {
	return writeAtomic(s.path, st)
}

// FileBudgetStore persists the risk budget with the same atomic
// write-then-rename discipline.
type FileBudgetStore struct {
	path string
}

func NewFileBudgetStore(path string) *FileBudgetStore {
	return &FileBudgetStore{path: path}
}

func (s *FileBudgetStore) Load(_ context.Context) (*models.RiskBudget, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read budget state: %w", err)
	}
	var budget models.RiskBudget
	if err := json.Unmarshal(b, &budget); err != nil {
		return nil, fmt.Errorf("decode budget state: %w", err)
	}
	return &budget, nil
}

func (s *FileBudgetStore) Save(_ context.Context, b *models.RiskBudget) error {
	return writeAtomic(s.path, b)
}

// writeAtomic marshals v and replaces path via temp file + rename. The
// temp file lives in the target directory so the rename stays on one
// filesystem.
func writeAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

var (
	_ drepo.RewardStore = (*FileRewardStore)(nil)
	_ drepo.BudgetStore = (*FileBudgetStore)(nil)
)
