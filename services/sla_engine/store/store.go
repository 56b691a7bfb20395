// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists the engine's durable rows in BadgerDB.
//
// Four row families share one database, separated by key prefix:
//
//	sla/measurement/{tenant}/{route}/{window}/{end_unix:012d}
//	sla/incident/{tenant}/{policy}/{route}/{created_ns:019d}-{id}
//	sla/action/{profile}/{created_ns:019d}-{id}
//	sla/audit/{ts_ns:019d}-{id}
//
// Fixed-width zero-padded timestamps make lexicographic key order match
// time order, so newest-first reads are a single reverse scan. Values are
// JSON so an operator can inspect rows and evidence exports stay portable.
//
// Writes are last-write-wins: a measurement upsert for an aligned bucket
// replaces the previous row for that bucket, and concurrent writers
// converge on the final fold.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/storage/badger"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNilRow is returned when a write is attempted with a nil row.
	ErrNilRow = errors.New("row must not be nil")

	// ErrInvalidKeyPart is returned when an identifier would corrupt the
	// key scheme. Tenants, policy IDs, and profile IDs must not contain
	// the key separator.
	ErrInvalidKeyPart = errors.New("identifier contains reserved separator")
)

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store provides typed access to the engine's BadgerDB rows.
//
// Thread Safety: Safe for concurrent use. The underlying database owns
// all locking; Store holds no mutable state.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New creates a Store on top of an open database.
//
// The Store borrows the database; the caller remains responsible for
// closing it.
func New(db *badger.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With(slog.String("component", "store")),
	}
}

// -----------------------------------------------------------------------------
// Key Helpers
// -----------------------------------------------------------------------------

const keySeparator = "/"

// validateKeyPart rejects identifiers that would split a key segment.
func validateKeyPart(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if strings.Contains(value, keySeparator) {
		return fmt.Errorf("%w: %s %q", ErrInvalidKeyPart, field, value)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Codec
// -----------------------------------------------------------------------------

func encodeRow(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return data, nil
}

func decodeRow(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Scan Helpers
// -----------------------------------------------------------------------------

// reverseScan iterates keys under prefix from newest to oldest.
//
// The callback receives the raw value for each row and returns stop=true
// to end the scan early. Zero-padded timestamp segments make reverse key
// order equal reverse time order.
func (s *Store) reverseScan(ctx context.Context, prefix []byte, fn func(key []byte, val []byte) (stop bool, err error)) error {
	return s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last key with this prefix; key suffixes are ASCII
		// so a single 0xFF sorts above all of them.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var stop bool
			err := item.Value(func(val []byte) error {
				var innerErr error
				stop, innerErr = fn(item.Key(), val)
				return innerErr
			})
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
		return nil
	})
}

// setRow writes one key/value pair in its own transaction.
func (s *Store) setRow(ctx context.Context, key []byte, value []byte) error {
	return s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(key, value)
	})
}

// Sync flushes pending writes to disk.
func (s *Store) Sync() error {
	return s.db.Sync()
}
