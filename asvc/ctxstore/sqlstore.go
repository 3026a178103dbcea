// Copyright 2025 The ASIMOV Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ctxstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// SQLStore is a MySQL-backed Store for suspended service contexts,
// grounded on the teacher's examples/clustermode/server dbTaskStore:
// the record is kept as a JSON blob in a single column, upserted
// wholesale rather than field-by-field.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens a MySQL connection pool for dsn and verifies it
// with a ping, mirroring the teacher's clustermode openDB.
func OpenSQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open context store db: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping context store db: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// NewSQLStore wraps an already-configured *sql.DB, for callers that
// share a pool across stores.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Schema is the DDL SQLStore expects. Callers apply it out of band
// (migration tooling, a bootstrap script); SQLStore never issues DDL
// itself.
const Schema = `
CREATE TABLE IF NOT EXISTS service_context (
	context_key VARCHAR(191) NOT NULL PRIMARY KEY,
	record_json LONGTEXT NOT NULL,
	last_updated BIGINT NOT NULL
)`

func (s *SQLStore) Store(ctx context.Context, key string, rec Record) error {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal service context record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackTx(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO service_context (context_key, record_json, last_updated)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE record_json = VALUES(record_json), last_updated = VALUES(last_updated)
	`, key, string(recJSON), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert service context record: %w", err)
	}

	return tx.Commit()
}

func (s *SQLStore) Get(ctx context.Context, key string) (Record, bool, error) {
	var recJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT record_json FROM service_context WHERE context_key = ?
	`, key).Scan(&recJSON)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal service context record: %w", err)
	}
	return rec, true, nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM service_context WHERE context_key = ?`, key)
	return err
}

func rollbackTx(tx *sql.Tx) {
	_ = tx.Rollback()
}
