// Package store persists run records and merged transcripts in an embedded
// badger database so the service survives restarts without external state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v3"

	"meeting-transcript-service/internal/models"
)

// ErrNotFound reports a missing run or transcript.
var ErrNotFound = errors.New("not found")

const (
	runKeyPrefix        = "run:"
	transcriptKeyPrefix = "transcript:"
)

// Store wraps a badger database. Runs and transcripts live under separate
// key prefixes so run listings never deserialize transcript payloads.
type Store struct {
	db *badger.DB
}

// Open creates the data directory if needed and opens the database under it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dir, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database. Must be called before the process exits or
// badger will replay its value log on the next open.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutRun upserts a run record.
func (s *Store) PutRun(record *models.RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", record.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runKeyPrefix+record.ID), data)
	})
}

// GetRun loads one run record by ID.
func (s *Store) GetRun(id string) (*models.RunRecord, error) {
	var record models.RunRecord
	err := s.get(runKeyPrefix+id, &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRuns returns every run record, newest first.
func (s *Store) ListRuns() ([]models.RunRecord, error) {
	var records []models.RunRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record models.RunRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// PutTranscript stores the merged transcript for a run.
func (s *Store) PutTranscript(runID string, transcript *models.MergedTranscript) error {
	data, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript %s: %w", runID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(transcriptKeyPrefix+runID), data)
	})
}

// GetTranscript loads the merged transcript for a run.
func (s *Store) GetTranscript(runID string) (*models.MergedTranscript, error) {
	var transcript models.MergedTranscript
	err := s.get(transcriptKeyPrefix+runID, &transcript)
	if err != nil {
		return nil, err
	}
	return &transcript, nil
}

func (s *Store) get(key string, out any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return nil
}
