// Package snapshot serializes the full library to and from a transport payload.
//
// The payload is a self-describing JSON document carrying both record kinds
// plus a format version tag. It is always sealed by the crypto envelope
// before leaving the device; this package itself has no side effects.
package snapshot

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/leafmarkapp/leafmark-sync/internal/domain"
	"github.com/leafmarkapp/leafmark-sync/internal/errors"
)

// Version is the current snapshot format version. Earlier pairing-code and
// payload formats from the app's history are not carried: a decoder speaks
// exactly one protocol version.
const Version = 1

// payload is the wire document. Instants are RFC 3339 via encoding/json's
// time.Time handling.
type payload struct {
	DeviceID string        `json:"device_id,omitempty"`
	Books    []payloadBook `json:"books"`
	Logs     []payloadLog  `json:"logs"`
	Version  int           `json:"version"`
}

type payloadBook struct {
	StartDate    time.Time `json:"start_date" validate:"required"`
	LastReadDate time.Time `json:"last_read_date" validate:"required"`
	ID           string    `json:"id" validate:"required"`
	Title        string    `json:"title" validate:"required"`
	Status       string    `json:"status" validate:"oneof=reading completed"`
	TotalPages   int       `json:"total_pages" validate:"gt=0"`
	CurrentPage  int       `json:"current_page" validate:"gte=0"`
}

type payloadLog struct {
	Date   time.Time `json:"date" validate:"required"`
	ID     string    `json:"id" validate:"required"`
	BookID string    `json:"book_id" validate:"required"`
	Page   int       `json:"page" validate:"gte=0"`
}

var validate = validator.New()

// Encode serializes the given record sets into a transport payload.
// deviceID is stamped in for diagnostics only; it carries no identity the
// merge engine uses.
func Encode(deviceID string, books []*domain.Book, logs []*domain.ReadingLog) ([]byte, error) {
	p := payload{
		Version:  Version,
		DeviceID: deviceID,
		Books:    make([]payloadBook, 0, len(books)),
		Logs:     make([]payloadLog, 0, len(logs)),
	}

	for _, b := range books {
		p.Books = append(p.Books, payloadBook{
			ID:           b.ID,
			Title:        b.Title,
			TotalPages:   b.TotalPages,
			StartDate:    b.StartDate,
			LastReadDate: b.LastReadDate,
			Status:       string(b.Status),
			CurrentPage:  b.CurrentPage,
		})
	}
	for _, l := range logs {
		p.Logs = append(p.Logs, payloadLog{
			ID:     l.ID,
			BookID: l.BookID,
			Date:   l.Date,
			Page:   l.Page,
		})
	}

	return json.Marshal(p)
}

// Decode parses a transport payload back into record sets.
// It fails with a MalformedSnapshot error when the document is not JSON,
// the version tag is unrecognized, either record kind is absent, or a record
// fails structural validation. Nothing from a malformed snapshot is usable.
func Decode(data []byte) ([]*domain.Book, []*domain.ReadingLog, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeMalformedSnapshot, "snapshot is not valid JSON")
	}

	if p.Version != Version {
		return nil, nil, errors.MalformedSnapshotf("unsupported snapshot version %d", p.Version)
	}
	// Empty arrays are fine; missing record kinds are not.
	if p.Books == nil {
		return nil, nil, errors.MalformedSnapshot("snapshot is missing books")
	}
	if p.Logs == nil {
		return nil, nil, errors.MalformedSnapshot("snapshot is missing logs")
	}

	books := make([]*domain.Book, 0, len(p.Books))
	for i, pb := range p.Books {
		if err := validate.Struct(pb); err != nil {
			return nil, nil, errors.Wrapf(err, errors.CodeMalformedSnapshot, "snapshot book %d is invalid", i)
		}
		books = append(books, &domain.Book{
			ID:           pb.ID,
			Title:        pb.Title,
			TotalPages:   pb.TotalPages,
			StartDate:    pb.StartDate,
			LastReadDate: pb.LastReadDate,
			Status:       domain.BookStatus(pb.Status),
			CurrentPage:  pb.CurrentPage,
		})
	}

	logs := make([]*domain.ReadingLog, 0, len(p.Logs))
	for i, pl := range p.Logs {
		if err := validate.Struct(pl); err != nil {
			return nil, nil, errors.Wrapf(err, errors.CodeMalformedSnapshot, "snapshot log %d is invalid", i)
		}
		logs = append(logs, &domain.ReadingLog{
			ID:     pl.ID,
			BookID: pl.BookID,
			Date:   pl.Date,
			Page:   pl.Page,
		})
	}

	return books, logs, nil
}
