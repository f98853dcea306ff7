// Package ratelimit throttles public form submissions.
//
// Counters use fixed hourly and daily windows and are kept in memory,
// flushed to BoltDB periodically and on Stop so restarts keep them.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRateLimits = []byte("rate_limits")

// Scope is what a counter is keyed on
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeIP     Scope = "ip"
	ScopeEmail  Scope = "email"
)

// Limit caps events per window. Zero disables that window.
type Limit struct {
	PerHour int `yaml:"per_hour" json:"per_hour"`
	PerDay  int `yaml:"per_day" json:"per_day"`
}

// Enabled reports whether any window is capped
func (l Limit) Enabled() bool {
	return l.PerHour > 0 || l.PerDay > 0
}

// Config holds the limits per scope
type Config struct {
	Global        Limit         `yaml:"global"`
	PerIP         Limit         `yaml:"per_ip"`
	PerEmail      Limit         `yaml:"per_email"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Request identifies one submission
type Request struct {
	IP    string
	Email string
}

// Decision is the outcome of Allow
type Decision struct {
	Allowed    bool
	Scope      Scope         // scope that denied the request
	RetryAfter time.Duration // until the denying window resets
}

// Usage is the current state of one counter
type Usage struct {
	Scope     Scope     `json:"scope"`
	Key       string    `json:"key"`
	Hourly    int       `json:"hourly"`
	Daily     int       `json:"daily"`
	HourStart time.Time `json:"hourStart"`
	DayStart  time.Time `json:"dayStart"`
}

type window struct {
	Hourly    int       `json:"hourly"`
	Daily     int       `json:"daily"`
	HourStart time.Time `json:"hour_start"`
	DayStart  time.Time `json:"day_start"`
}

// roll resets windows that have elapsed at now
func (w *window) roll(now time.Time) {
	if now.Sub(w.HourStart) >= time.Hour {
		w.Hourly = 0
		w.HourStart = now
	}
	if now.Sub(w.DayStart) >= 24*time.Hour {
		w.Daily = 0
		w.DayStart = now
	}
}

// Limiter counts submissions per scope
type Limiter struct {
	db       *bolt.DB
	cfg      Config
	mu       sync.Mutex
	windows  map[string]*window
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a limiter persisting into db
func New(db *bolt.DB, cfg Config) (*Limiter, error) {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	l := &Limiter{
		db:      db,
		cfg:     cfg,
		windows: make(map[string]*window),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	if err := l.load(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	go l.flushLoop()

	return l, nil
}

type check struct {
	scope Scope
	key   string
	limit Limit
}

func (l *Limiter) checks(req Request) []check {
	var out []check
	if l.cfg.Global.Enabled() {
		out = append(out, check{ScopeGlobal, "all", l.cfg.Global})
	}
	if ip := strings.TrimSpace(req.IP); ip != "" && l.cfg.PerIP.Enabled() {
		out = append(out, check{ScopeIP, ip, l.cfg.PerIP})
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" && l.cfg.PerEmail.Enabled() {
		out = append(out, check{ScopeEmail, email, l.cfg.PerEmail})
	}
	return out
}

// Allow checks every applicable limit and, if none is exhausted,
// counts the request against all of them
func (l *Limiter) Allow(ctx context.Context, req Request) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.checks(req)

	for _, c := range checks {
		w := l.window(c.scope, c.key, now)
		w.roll(now)

		if c.limit.PerHour > 0 && w.Hourly >= c.limit.PerHour {
			return Decision{Scope: c.scope, RetryAfter: w.HourStart.Add(time.Hour).Sub(now)}
		}
		if c.limit.PerDay > 0 && w.Daily >= c.limit.PerDay {
			return Decision{Scope: c.scope, RetryAfter: w.DayStart.Add(24 * time.Hour).Sub(now)}
		}
	}

	for _, c := range checks {
		w := l.windows[makeKey(c.scope, c.key)]
		w.Hourly++
		w.Daily++
	}

	return Decision{Allowed: true}
}

// Usage returns the counter for a scope and key without changing it
func (l *Limiter) Usage(scope Scope, key string) Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := Usage{Scope: scope, Key: key}
	w, ok := l.windows[makeKey(scope, key)]
	if !ok {
		return u
	}

	now := l.now()
	u.HourStart, u.DayStart = w.HourStart, w.DayStart
	if now.Sub(w.HourStart) < time.Hour {
		u.Hourly = w.Hourly
	}
	if now.Sub(w.DayStart) < 24*time.Hour {
		u.Daily = w.Daily
	}
	return u
}

// Stop ends the flush loop and writes the counters one last time
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return l.flush()
}

func (l *Limiter) window(scope Scope, key string, now time.Time) *window {
	k := makeKey(scope, key)
	w, ok := l.windows[k]
	if !ok {
		w = &window{HourStart: now, DayStart: now}
		l.windows[k] = w
	}
	return w
}

func (l *Limiter) load() error {
	return l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRateLimits).ForEach(func(k, v []byte) error {
			var w window
			if err := json.Unmarshal(v, &w); err != nil {
				return nil
			}
			l.windows[string(k)] = &w
			return nil
		})
	})
}

func (l *Limiter) flush() error {
	l.mu.Lock()
	snapshot := make(map[string][]byte, len(l.windows))
	now := l.now()
	for k, w := range l.windows {
		// Both windows over: nothing worth keeping
		if now.Sub(w.DayStart) >= 24*time.Hour {
			delete(l.windows, k)
			snapshot[k] = nil
			continue
		}
		data, err := json.Marshal(w)
		if err != nil {
			continue
		}
		snapshot[k] = data
	}
	l.mu.Unlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		for k, data := range snapshot {
			if data == nil {
				if err := bucket.Delete([]byte(k)); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put([]byte(k), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Limiter) flushLoop() {
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.flush()
		}
	}
}

func makeKey(scope Scope, key string) string {
	return string(scope) + ":" + key
}
