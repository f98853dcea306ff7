package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/Kalhara-JA/retail-os/internal/email"
)

var bucketSandbox = []byte("sandbox")

// Captured is a message kept by the sandbox instead of being sent
type Captured struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         []string  `json:"to"`
	CC         []string  `json:"cc,omitempty"`
	BCC        []string  `json:"bcc,omitempty"`
	Subject    string    `json:"subject"`
	HTML       string    `json:"html,omitempty"`
	Data       []byte    `json:"data,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// SandboxStorage keeps captured messages in BoltDB, ordered by capture time
type SandboxStorage struct {
	db *bolt.DB
}

// NewSandboxStorage creates the sandbox bucket on db
func NewSandboxStorage(db *bolt.DB) (*SandboxStorage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSandbox)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox bucket: %w", err)
	}
	return &SandboxStorage{db: db}, nil
}

// Save stores a captured message
func (s *SandboxStorage) Save(ctx context.Context, msg *Captured) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSandbox).Put(makeIndexKey(msg.CapturedAt, msg.ID), data)
	})
}

// Get returns a captured message by ID, or nil
func (s *SandboxStorage) Get(ctx context.Context, id string) (*Captured, error) {
	var msg *Captured

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSandbox).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m Captured
			if err := json.Unmarshal(v, &m); err != nil {
				continue
			}
			if m.ID == id {
				msg = &m
				return nil
			}
		}
		return nil
	})

	return msg, err
}

// List returns captured messages newest first, without raw data.
// limit 0 means no limit.
func (s *SandboxStorage) List(ctx context.Context, limit int) ([]*Captured, error) {
	messages := []*Captured{}

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSandbox).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var m Captured
			if err := json.Unmarshal(v, &m); err != nil {
				continue
			}
			m.Data = nil
			messages = append(messages, &m)

			if limit > 0 && len(messages) >= limit {
				break
			}
		}
		return nil
	})

	return messages, err
}

// Clear removes every captured message and returns how many were removed
func (s *SandboxStorage) Clear(ctx context.Context) (int, error) {
	var count int
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSandbox)
		count = bucket.Stats().KeyN
		if err := tx.DeleteBucket(bucketSandbox); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketSandbox)
		return err
	})
	return count, err
}

// SandboxMailer captures messages into SandboxStorage instead of sending them
type SandboxMailer struct {
	storage *SandboxStorage
	headers *HeaderRules
	logger  *slog.Logger
	now     func() time.Time
}

// NewSandbox creates a capturing mailer
func NewSandbox(storage *SandboxStorage, logger *slog.Logger) *SandboxMailer {
	return &SandboxMailer{storage: storage, logger: logger, now: time.Now}
}

// SetHeaderRules installs header edits applied to captured messages
func (m *SandboxMailer) SetHeaderRules(r *HeaderRules) {
	m.headers = r
}

// Mode returns ModeSandbox
func (m *SandboxMailer) Mode() Mode {
	return ModeSandbox
}

// Send stores msg in the sandbox
func (m *SandboxMailer) Send(ctx context.Context, msg *Message) error {
	err := m.capture(ctx, msg)
	record(ModeSandbox, err)
	return err
}

func (m *SandboxMailer) capture(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	now := m.now()
	data, err := Compose(msg, now)
	if err != nil {
		return err
	}
	data = ApplyHeaderRules(data, m.headers.For(email.ExtractDomain(msg.From)))

	captured := &Captured{
		ID:         uuid.New().String(),
		From:       msg.From,
		To:         msg.To,
		CC:         msg.CC,
		BCC:        msg.BCC,
		Subject:    msg.Subject,
		HTML:       msg.HTML,
		Data:       data,
		CapturedAt: now,
	}

	if err := m.storage.Save(ctx, captured); err != nil {
		return fmt.Errorf("sandbox: failed to save message: %w", err)
	}

	m.logger.Info("sandbox: message captured",
		"id", captured.ID,
		"from", msg.From,
		"to", msg.To,
	)
	return nil
}

// Fixed width so keys sort by time
const indexKeyLayout = "2006-01-02T15:04:05.000000000Z"

func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format(indexKeyLayout) + ":" + id)
}
