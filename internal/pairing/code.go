// Package pairing drives the human-facing handshake between two devices.
//
// One device hosts: it seals a snapshot, uploads it, and shows a pairing
// code. The other joins: it enters or scans the code, pulls the snapshot,
// merges it, and pushes its own merged state back on the return channel.
package pairing

import (
	"fmt"
	"strings"

	"github.com/leafmarkapp/leafmark-sync/internal/errors"
)

// codeSeparator delimits the fields of a pairing code. Blob handles and
// topic names are NanoID-based and never contain a dot.
const codeSeparator = "."

// Code is the pairing secret exchanged out-of-band between devices. The
// same string is what a QR code encodes and what the manual-entry form
// accepts, so there is exactly one parse path for both.
//
// This is the one and only code format: room token + PIN + optional return
// topic. Earlier generations of the app shipped incompatible variants;
// none of them are accepted here.
type Code struct {
	// Room is the opaque blob handle of the host's sealed snapshot.
	Room string
	// PIN is the short numeric passcode the snapshot was sealed with.
	PIN string
	// ReturnTopic, when present, names the signal topic the joiner should
	// announce its merged snapshot on. Absent for one-way imports.
	ReturnTopic string
}

// String renders the code in its transport form.
func (c Code) String() string {
	fields := []string{c.Room, c.PIN}
	if c.ReturnTopic != "" {
		fields = append(fields, c.ReturnTopic)
	}
	return strings.Join(fields, codeSeparator)
}

// Validate checks the code's fields.
func (c Code) Validate() error {
	if c.Room == "" {
		return errors.Validation("pairing code is missing the room token")
	}
	if c.PIN == "" {
		return errors.Validation("pairing code is missing the PIN")
	}
	for _, r := range c.PIN {
		if r < '0' || r > '9' {
			return errors.Validationf("PIN must be numeric, got %q", c.PIN)
		}
	}
	return nil
}

// ParseCode splits a scanned or pasted pairing code into its fields.
func ParseCode(raw string) (Code, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Code{}, errors.Validation("pairing code is empty")
	}

	fields := strings.Split(raw, codeSeparator)
	var c Code
	switch len(fields) {
	case 2:
		c = Code{Room: fields[0], PIN: fields[1]}
	case 3:
		c = Code{Room: fields[0], PIN: fields[1], ReturnTopic: fields[2]}
	default:
		return Code{}, errors.Validationf("pairing code has %d fields, want 2 or 3", len(fields))
	}

	if err := c.Validate(); err != nil {
		return Code{}, err
	}
	return c, nil
}

// CodeSource produces pairing codes from some input channel: the optical
// scanner and the manual-entry form are both sources, feeding the identical
// join routine. A source that cannot operate (camera denied or missing)
// returns a ScannerUnavailable error; callers fall back to another source
// rather than failing the join.
type CodeSource interface {
	// Next blocks until a code is available or the source fails.
	Next() (Code, error)
	// Close releases the source (stops an active scanner).
	Close() error
}

// NextFrom reads a code from the first source able to produce one. A source
// failing with ScannerUnavailable is skipped in favor of the next, so a
// denied camera falls back to manual entry. Any other failure is surfaced
// as-is.
func NextFrom(sources ...CodeSource) (Code, error) {
	var lastErr error
	for _, src := range sources {
		c, err := src.Next()
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, errors.ErrScannerUnavailable) {
			return Code{}, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.ScannerUnavailable("no code source available")
	}
	return Code{}, lastErr
}

// StaticSource is a CodeSource over an already-known code string, used for
// manual entry and tests.
type StaticSource struct {
	raw  string
	used bool
}

// NewStaticSource creates a source that yields raw exactly once.
func NewStaticSource(raw string) *StaticSource {
	return &StaticSource{raw: raw}
}

// Next yields the code on first call and fails afterwards.
func (s *StaticSource) Next() (Code, error) {
	if s.used {
		return Code{}, fmt.Errorf("code already consumed")
	}
	s.used = true
	return ParseCode(s.raw)
}

// Close implements CodeSource.
func (s *StaticSource) Close() error { return nil }
