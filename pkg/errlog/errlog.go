// Package errlog keeps a bounded, durable log of client-side errors for later
// inspection. Recording an error never fails the caller's flow.
package errlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/storefront-client/pkg/storage"
	"github.com/rs/zerolog"
)

// MaxRecords is the number of most recent records kept.
const MaxRecords = 10

// Record is one logged error.
type Record struct {
	Message        string         `json:"message"`
	Stack          string         `json:"stack,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	URL            string         `json:"url"`
	UserAgent      string         `json:"userAgent"`
	AdditionalInfo map[string]any `json:"additionalInfo,omitempty"`
}

// Log appends records to a KV store under storage.ErrorLogKey.
type Log struct {
	kv        storage.KV
	url       string
	userAgent string
	logger    zerolog.Logger
	now       func() time.Time

	mu sync.Mutex
}

// New creates an error log. url and userAgent are stamped on every record.
func New(kv storage.KV, url, userAgent string, logger zerolog.Logger) *Log {
	return &Log{
		kv:        kv,
		url:       url,
		userAgent: userAgent,
		logger:    logger,
		now:       time.Now,
	}
}

// Append stores rec, dropping the oldest records beyond MaxRecords.
func (l *Log) Append(ctx context.Context, rec Record) {
	if l == nil {
		return
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}
	if rec.URL == "" {
		rec.URL = l.url
	}
	if rec.UserAgent == "" {
		rec.UserAgent = l.userAgent
	}

	l.logger.Error().
		Str("message", rec.Message).
		Interface("info", rec.AdditionalInfo).
		Msg("Error logged")

	l.mu.Lock()
	defer l.mu.Unlock()

	records := l.load(ctx)
	records = append(records, rec)
	if len(records) > MaxRecords {
		records = records[len(records)-MaxRecords:]
	}

	data, err := json.Marshal(records)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to encode error log")
		return
	}
	if err := l.kv.Set(ctx, storage.ErrorLogKey, string(data)); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to store error log")
	}
}

// LogError records err with optional additional info.
func (l *Log) LogError(ctx context.Context, err error, info map[string]any) {
	if err == nil {
		return
	}
	l.Append(ctx, Record{
		Message:        err.Error(),
		Stack:          stackOf(err),
		AdditionalInfo: info,
	})
}

// LogAPIError records a failed API response.
func (l *Log) LogAPIError(ctx context.Context, endpoint string, status int, message string) {
	l.LogError(ctx, fmt.Errorf("API Error: %s - %d - %s", endpoint, status, message), map[string]any{
		"type":     "api_error",
		"endpoint": endpoint,
		"status":   status,
	})
}

// LogNetworkError records a transport failure for url.
func (l *Log) LogNetworkError(ctx context.Context, url string, err error) {
	l.LogError(ctx, err, map[string]any{
		"type": "network_error",
		"url":  url,
	})
}

// Records returns the stored records, oldest first.
// Absent or malformed logs yield an empty slice.
func (l *Log) Records(ctx context.Context) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Clear removes all stored records.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.kv.Remove(ctx, storage.ErrorLogKey)
}

func (l *Log) load(ctx context.Context) []Record {
	raw, err := l.kv.Get(ctx, storage.ErrorLogKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			l.logger.Warn().Err(err).Msg("Failed to read error log")
		}
		return []Record{}
	}

	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		l.logger.Warn().Err(err).Msg("Discarding malformed error log")
		return []Record{}
	}
	return records
}

// stackOf flattens the wrap chain of err, outermost first.
func stackOf(err error) string {
	var out string
	for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
		if out != "" {
			out += "\n"
		}
		out += "caused by: " + e.Error()
	}
	return out
}
