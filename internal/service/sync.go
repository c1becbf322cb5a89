// Package service orchestrates the end-to-end pairing flows.
//
// The sync service is the only place where snapshot, envelope, relay, and
// merge meet. Hosting and joining are asymmetric: the host seals and uploads
// first and then waits on a return topic, the joiner pulls, merges, and
// pushes its merged library back. Every step drives the session state
// machine, so the caller can render progress and cancel at any point.
package service

import (
	"context"
	"log/slog"

	"github.com/leafmarkapp/leafmark-sync/internal/domain"
	"github.com/leafmarkapp/leafmark-sync/internal/envelope"
	"github.com/leafmarkapp/leafmark-sync/internal/errors"
	"github.com/leafmarkapp/leafmark-sync/internal/id"
	"github.com/leafmarkapp/leafmark-sync/internal/merge"
	"github.com/leafmarkapp/leafmark-sync/internal/pairing"
	"github.com/leafmarkapp/leafmark-sync/internal/relay"
	"github.com/leafmarkapp/leafmark-sync/internal/snapshot"
	"github.com/leafmarkapp/leafmark-sync/internal/store"
)

// SyncService runs the host and join sides of a pairing session.
type SyncService struct {
	store    store.Store
	merger   *merge.Engine
	blob     *relay.BlobClient
	signal   *relay.SignalClient
	logger   *slog.Logger
	deviceID string
}

// NewSyncService wires the sync service.
func NewSyncService(st store.Store, merger *merge.Engine, blob *relay.BlobClient, signal *relay.SignalClient, deviceID string, logger *slog.Logger) *SyncService {
	return &SyncService{
		store:    st,
		merger:   merger,
		blob:     blob,
		signal:   signal,
		logger:   logger,
		deviceID: deviceID,
	}
}

// Host prepares this device's side of a pairing session: snapshot the
// library, seal it under a fresh PIN, upload it, and mint the pairing code
// the user shows or reads to the other device. On return the session is
// ready; call AwaitReturn to wait for the joiner's merged library.
func (s *SyncService) Host(ctx context.Context, sess *pairing.Session) (pairing.Code, error) {
	if err := sess.Transition(pairing.StatePreparing); err != nil {
		return pairing.Code{}, err
	}

	code, err := s.prepare(ctx)
	if err != nil {
		sess.Fail(err)
		return pairing.Code{}, err
	}

	if err := sess.Transition(pairing.StateReady); err != nil {
		return pairing.Code{}, err
	}
	s.logger.Info("hosting pairing session", "room", code.Room, "return_topic", code.ReturnTopic)
	return code, nil
}

func (s *SyncService) prepare(ctx context.Context) (pairing.Code, error) {
	payload, err := s.snapshotLibrary(ctx)
	if err != nil {
		return pairing.Code{}, err
	}

	pin, err := envelope.NewPIN()
	if err != nil {
		return pairing.Code{}, err
	}
	sealed, err := envelope.Seal(payload, pin)
	if err != nil {
		return pairing.Code{}, err
	}

	handle, err := s.blob.Put(ctx, []byte(sealed))
	if err != nil {
		return pairing.Code{}, err
	}
	topic, err := id.Generate(id.PrefixTopic)
	if err != nil {
		return pairing.Code{}, err
	}

	return pairing.Code{Room: handle, PIN: pin, ReturnTopic: topic}, nil
}

// AwaitReturn long-polls the return topic until the joiner announces its
// merged snapshot, then downloads, opens, and merges it. It blocks until the
// session succeeds, fails, or is canceled. A poll response that lands after
// the session stopped accepting (cancel, or a state change) is discarded.
func (s *SyncService) AwaitReturn(sess *pairing.Session, code pairing.Code) error {
	ctx := sess.Context()

	var handle string
	for {
		msg, err := s.signal.Poll(ctx, code.ReturnTopic)
		if err == nil {
			if !sess.Accepting() {
				s.logger.Debug("discarding late pairing response", "topic", code.ReturnTopic)
				return nil
			}
			handle = msg
			break
		}
		if errors.Is(err, relay.ErrPollTimeout) {
			// Quiet round; the joiner has not shown up yet.
			continue
		}
		if ctx.Err() != nil {
			// Canceled by the user: not a failure.
			return ctx.Err()
		}
		sess.Fail(err)
		return err
	}

	if err := sess.Transition(pairing.StateMerging); err != nil {
		return err
	}

	res, err := s.fetchAndMerge(ctx, handle, code.PIN)
	if err != nil {
		sess.Fail(err)
		return err
	}
	sess.AddStats(res.BooksAdded, res.LogsAdded)

	if err := sess.Transition(pairing.StateSuccess); err != nil {
		return err
	}
	s.logger.Info("pairing complete",
		"books_added", res.BooksAdded,
		"logs_added", res.LogsAdded,
	)
	return nil
}

// Join runs the joiner side: fetch the host's sealed snapshot, open it with
// the code's PIN, merge it, and push the merged library back on the return
// topic so the host converges too. With no return topic the join is a
// one-way import.
func (s *SyncService) Join(sess *pairing.Session, code pairing.Code) error {
	ctx := sess.Context()

	if err := code.Validate(); err != nil {
		sess.Fail(err)
		return err
	}
	if err := sess.Transition(pairing.StateJoining); err != nil {
		return err
	}

	res, err := s.fetchAndMerge(ctx, code.Room, code.PIN)
	if err != nil {
		sess.Fail(err)
		return err
	}
	sess.AddStats(res.BooksAdded, res.LogsAdded)

	if err := sess.Transition(pairing.StateMerging); err != nil {
		return err
	}

	if code.ReturnTopic != "" {
		if err := s.pushBack(ctx, code); err != nil {
			sess.Fail(err)
			return err
		}
	}

	if err := sess.Transition(pairing.StateSuccess); err != nil {
		return err
	}
	s.logger.Info("join complete",
		"books_added", res.BooksAdded,
		"logs_added", res.LogsAdded,
	)
	return nil
}

// fetchAndMerge downloads a sealed snapshot by handle, opens it, and merges
// it into the local library.
func (s *SyncService) fetchAndMerge(ctx context.Context, handle, pin string) (merge.Result, error) {
	sealed, err := s.blob.Get(ctx, handle)
	if err != nil {
		return merge.Result{}, err
	}
	payload, err := envelope.Open(string(sealed), pin)
	if err != nil {
		return merge.Result{}, err
	}
	books, logs, err := snapshot.Decode(payload)
	if err != nil {
		return merge.Result{}, err
	}
	return s.merger.Merge(ctx, books, logs)
}

// pushBack uploads the post-merge library, sealed under the same PIN, and
// announces the new handle on the return topic.
func (s *SyncService) pushBack(ctx context.Context, code pairing.Code) error {
	payload, err := s.snapshotLibrary(ctx)
	if err != nil {
		return err
	}
	sealed, err := envelope.Seal(payload, code.PIN)
	if err != nil {
		return err
	}
	handle, err := s.blob.Put(ctx, []byte(sealed))
	if err != nil {
		return err
	}
	return s.signal.Publish(ctx, code.ReturnTopic, handle)
}

// snapshotLibrary encodes the entire local library into a transport payload.
func (s *SyncService) snapshotLibrary(ctx context.Context) ([]byte, error) {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}

	var logs []*domain.ReadingLog
	for _, b := range books {
		bookLogs, err := s.store.ListLogsForBook(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		logs = append(logs, bookLogs...)
	}

	return snapshot.Encode(s.deviceID, books, logs)
}
