// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fiscal

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/fiscal-engine/pkg/types"
)

// ErrLimitExceeded is returned by Admit when a document breaks an upload
// limit and the configured action is stop.
var ErrLimitExceeded = errors.New("upload limit exceeded")

// Limiter tracks the documents sent to the extraction service during one
// run and enforces the per-file, file-count and total-size limits. It is
// safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	limits types.UploadLimits
	files  int
	bytes  int64
	warned bool
	logger *zap.Logger
}

// NewLimiter returns a limiter for limits. Zero fields fall back to
// types.DefaultUploadLimits.
func NewLimiter(limits types.UploadLimits, logger *zap.Logger) *Limiter {
	def := types.DefaultUploadLimits()
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = def.MaxFiles
	}
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = def.MaxFileBytes
	}
	if limits.MaxTotalBytes <= 0 {
		limits.MaxTotalBytes = def.MaxTotalBytes
	}
	if limits.WarningThreshold <= 0 || limits.WarningThreshold > 1 {
		limits.WarningThreshold = def.WarningThreshold
	}
	if limits.OnExceed == "" {
		limits.OnExceed = def.OnExceed
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{limits: limits, logger: logger}
}

// Admit accounts for a document of size bytes. It returns true when the
// document may be sent. A document over a limit is refused: with the skip
// action Admit returns false and a nil error, with stop it returns an
// error wrapping ErrLimitExceeded.
func (l *Limiter) Admit(name string, size int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var reason string
	switch {
	case size > l.limits.MaxFileBytes:
		reason = fmt.Sprintf("file size %s exceeds %s", megabytes(size), megabytes(l.limits.MaxFileBytes))
	case l.files+1 > l.limits.MaxFiles:
		reason = fmt.Sprintf("file count would exceed %d", l.limits.MaxFiles)
	case l.bytes+size > l.limits.MaxTotalBytes:
		reason = fmt.Sprintf("total size would exceed %s", megabytes(l.limits.MaxTotalBytes))
	}

	if reason != "" {
		l.logger.Warn("upload limit reached",
			zap.String("document", name),
			zap.String("reason", reason),
			zap.String("action", string(l.limits.OnExceed)))
		if l.limits.OnExceed == types.ExceedStop {
			return false, fmt.Errorf("%s: %s: %w", name, reason, ErrLimitExceeded)
		}
		return false, nil
	}

	l.files++
	l.bytes += size
	l.warnOnce()
	return true, nil
}

// Release returns the budget of an admitted document that was not sent.
func (l *Limiter) Release(size int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.files > 0 {
		l.files--
	}
	l.bytes = max(l.bytes-size, 0)
}

// Usage returns the number and combined size of admitted documents.
func (l *Limiter) Usage() (files int, bytes int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.files, l.bytes
}

// warnOnce must be called with mu held.
func (l *Limiter) warnOnce() {
	if l.warned {
		return
	}
	fileUse := float64(l.files) / float64(l.limits.MaxFiles)
	sizeUse := float64(l.bytes) / float64(l.limits.MaxTotalBytes)
	if fileUse < l.limits.WarningThreshold && sizeUse < l.limits.WarningThreshold {
		return
	}
	l.warned = true
	l.logger.Warn("approaching upload limits",
		zap.Int("files", l.files),
		zap.Int("max_files", l.limits.MaxFiles),
		zap.String("total", megabytes(l.bytes)),
		zap.String("max_total", megabytes(l.limits.MaxTotalBytes)))
}

func megabytes(n int64) string {
	return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
}
