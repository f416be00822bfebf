// Package antivirus scans uploaded files before they reach storage.
package antivirus

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the scanner cannot be reached.
var ErrUnavailable = errors.New("antivirus: scanner unavailable")

// ScanResult contains the result of a malware scan
type ScanResult struct {
	Infected    bool   // True if malware was detected
	ThreatName  string // Name of detected threat (empty if clean)
	ScannerName string
}

// Scanner is the interface for pluggable antivirus implementations.
// A non-nil error means the file could not be judged; callers reject it.
type Scanner interface {
	Scan(ctx context.Context, data []byte) (ScanResult, error)
	Name() string
	Ping(ctx context.Context) error
}
