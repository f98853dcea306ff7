package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/Kalhara-JA/retail-os/internal/schema"
)

var bucketGlobals = []byte("globals")

// timestampLayout matches the ISO-8601 strings the frontend expects
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// BoltStore implements Store using BoltDB.
// Each collection lives in its own bucket keyed by insertion sequence,
// so Find returns documents in creation order.
type BoltStore struct {
	db          *bolt.DB
	path        string
	revalidator Revalidator
	now         func() time.Time
}

// NewBoltStore opens (or creates) the database at path
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		names := [][]byte{bucketGlobals}
		for _, c := range schema.CollectionsWithUsers(true) {
			names = append(names, collectionBucket(c))
			if c.Versioned() {
				names = append(names, versionsBucket(c))
			}
		}
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: path, now: time.Now}, nil
}

// SetRevalidator installs the hook called after successful writes
func (s *BoltStore) SetRevalidator(r Revalidator) {
	s.revalidator = r
}

// DB returns the underlying database so other components can share it
func (s *BoltStore) DB() *bolt.DB {
	return s.db
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.path
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Find returns documents from a collection in insertion order
func (s *BoltStore) Find(ctx context.Context, collection schema.Collection, opts FindOptions) (*FindResult, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	skip := 0
	page := 0
	if opts.Pagination {
		page = opts.Page
		if page < 1 {
			page = 1
		}
		skip = (page - 1) * limit
	}

	result := &FindResult{Docs: []Document{}, Limit: limit, Page: page}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(collectionBucket(collection)).ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to decode document %x in %s: %w", k, collection, err)
			}
			if !opts.Where.Matches(doc) {
				return nil
			}

			result.TotalDocs++
			if result.TotalDocs <= skip || len(result.Docs) >= limit {
				return nil
			}
			result.Docs = append(result.Docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Create stores a new document with a fresh id and timestamps.
// Identity fields present in data are ignored.
func (s *BoltStore) Create(ctx context.Context, collection schema.Collection, data Document) (Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := WithoutIdentity(data)
	now := s.now().UTC().Format(timestampLayout)
	doc[FieldID] = uuid.New().String()
	doc[FieldCreatedAt] = now
	doc[FieldUpdatedAt] = now

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(collectionBucket(collection))
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		if err := bucket.Put(sequenceKey(seq), raw); err != nil {
			return fmt.Errorf("failed to store document: %w", err)
		}

		if !collection.Versioned() {
			return nil
		}

		versions := tx.Bucket(versionsBucket(collection))
		vseq, err := versions.NextSequence()
		if err != nil {
			return err
		}
		version, err := json.Marshal(Document{
			"parent":    doc[FieldID],
			"version":   doc,
			"createdAt": now,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal version: %w", err)
		}
		return versions.Put(sequenceKey(vseq), version)
	})
	if err != nil {
		return nil, err
	}

	s.revalidate(ctx, CollectionTag(collection))
	return doc, nil
}

// DeleteMany removes every document matching where and returns how many were removed
func (s *BoltStore) DeleteMany(ctx context.Context, collection schema.Collection, where Where) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deleted, err := s.deleteMatching(collectionBucket(collection), func(doc Document) bool {
		return where.Matches(doc)
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.revalidate(ctx, CollectionTag(collection))
	}
	return deleted, nil
}

// DeleteVersions removes version history entries. The filter is matched
// against the versioned document, plus its parent id under "parent".
// Collections without versions report zero.
func (s *BoltStore) DeleteVersions(ctx context.Context, collection schema.Collection, where Where) (int, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !collection.Versioned() {
		return 0, nil
	}

	return s.deleteMatching(versionsBucket(collection), func(record Document) bool {
		snapshot, _ := record["version"].(map[string]any)
		candidate := Document{"parent": record["parent"]}
		for k, v := range snapshot {
			candidate[k] = v
		}
		return where.Matches(candidate)
	})
}

func (s *BoltStore) deleteMatching(bucketName []byte, match func(Document) bool) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)

		// Collect first: deleting while iterating a cursor skips entries
		var keys [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to decode %x in %s: %w", k, bucketName, err)
			}
			if match(doc) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return nil
	})
	return deleted, err
}

// FindGlobal returns the current value of a global.
// A global that was never written is an empty document.
func (s *BoltStore) FindGlobal(ctx context.Context, global schema.Global) (Document, error) {
	if err := checkGlobal(global); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := Document{}
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketGlobals).Get([]byte(global))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read global %s: %w", global, err)
	}
	return doc, nil
}

// UpdateGlobal replaces the value of a global
func (s *BoltStore) UpdateGlobal(ctx context.Context, global schema.Global, data Document) (Document, error) {
	if err := checkGlobal(global); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := WithoutIdentity(data)
	now := s.now().UTC().Format(timestampLayout)

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketGlobals)

		createdAt := now
		if raw := bucket.Get([]byte(global)); raw != nil {
			var existing Document
			if err := json.Unmarshal(raw, &existing); err == nil {
				if ts, ok := existing[FieldCreatedAt].(string); ok && ts != "" {
					createdAt = ts
				}
			}
		}
		doc[FieldCreatedAt] = createdAt
		doc[FieldUpdatedAt] = now

		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal global: %w", err)
		}
		return bucket.Put([]byte(global), raw)
	})
	if err != nil {
		return nil, err
	}

	s.revalidate(ctx, GlobalTag(global))
	return doc, nil
}

func (s *BoltStore) revalidate(ctx context.Context, tag string) {
	if s.revalidator == nil || RevalidationDisabled(ctx) {
		return
	}
	s.revalidator.Revalidate(ctx, tag)
}

func collectionBucket(c schema.Collection) []byte {
	return []byte("c:" + string(c))
}

func versionsBucket(c schema.Collection) []byte {
	return []byte("v:" + string(c))
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
