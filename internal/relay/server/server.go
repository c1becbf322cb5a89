// Package server implements a self-hosted relay daemon.
//
// It offers the same two primitives the public anonymous relays do, an
// opaque blob store and a topic-based signal board, so devices can be
// pointed at it without touching the envelope or merge contracts. Storage is
// in-memory, time-limited, and intentionally dumb: the daemon never sees
// plaintext, only sealed blobs and opaque handles.
package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/leafmarkapp/leafmark-sync/internal/id"
	"github.com/leafmarkapp/leafmark-sync/internal/ratelimit"
)

// Config holds relay daemon settings.
type Config struct {
	// BlobTTL is how long an uploaded blob stays retrievable.
	BlobTTL time.Duration
	// TopicTTL is how long an unconsumed message is kept.
	TopicTTL time.Duration
	// MaxBlobBytes caps accepted uploads.
	MaxBlobBytes int64
	// RequestsPerSecond is the per-IP rate limit.
	RequestsPerSecond float64
	// PollHold is how long a topic GET blocks waiting for a message.
	PollHold time.Duration
}

func (c Config) withDefaults() Config {
	if c.BlobTTL <= 0 {
		c.BlobTTL = 10 * time.Minute
	}
	if c.TopicTTL <= 0 {
		c.TopicTTL = 10 * time.Minute
	}
	if c.MaxBlobBytes <= 0 {
		c.MaxBlobBytes = 4 << 20
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.PollHold <= 0 {
		c.PollHold = 25 * time.Second
	}
	return c
}

type blob struct {
	data      []byte
	expiresAt time.Time
}

type topic struct {
	messages  []string
	waiters   []chan string
	expiresAt time.Time
}

// Server is the relay daemon. It implements http.Handler.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	limiter *ratelimit.KeyedRateLimiter
	router  chi.Router

	mu     sync.Mutex
	blobs  map[string]blob
	topics map[string]*topic

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a relay server and starts its expiry janitor.
func New(cfg Config, logger *slog.Logger) *Server {
	cfg = cfg.withDefaults()

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		limiter: ratelimit.New(cfg.RequestsPerSecond, int(cfg.RequestsPerSecond)*2),
		blobs:   make(map[string]blob),
		topics:  make(map[string]*topic),
		done:    make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))
	r.Use(s.rateLimit)

	r.Post("/v1/blobs", s.putBlob)
	r.Get("/v1/blobs/{handle}", s.getBlob)
	r.Post("/v1/topics/{topic}", s.publish)
	r.Get("/v1/topics/{topic}", s.poll)

	s.router = r

	go s.janitor()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the janitor and rate limiter.
func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.limiter.Stop()
	})
}

// rateLimit rejects clients that exceed the per-IP budget.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiter.Allow(host) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// putBlob accepts an opaque upload and answers with a fresh handle.
func (s *Server) putBlob(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBlobBytes+1))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > s.cfg.MaxBlobBytes {
		http.Error(w, "blob too large", http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty blob", http.StatusBadRequest)
		return
	}

	handle, err := id.Generate(id.PrefixBlob)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.blobs[handle] = blob{data: data, expiresAt: time.Now().Add(s.cfg.BlobTTL)}
	s.mu.Unlock()

	s.logger.Info("blob stored", "handle", handle, "bytes", len(data))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"handle": handle})
}

// getBlob serves a blob exactly once, then deletes it. Unknown, consumed,
// and expired handles are indistinguishable to the caller.
func (s *Server) getBlob(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	s.mu.Lock()
	b, ok := s.blobs[handle]
	if ok {
		delete(s.blobs, handle)
	}
	s.mu.Unlock()

	if !ok || time.Now().After(b.expiresAt) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	s.logger.Info("blob consumed", "handle", handle)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(b.data)
}

// publish queues a short message on a topic, waking one waiting poller if
// any is parked.
func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "topic")

	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil || len(body) == 0 {
		http.Error(w, "bad message", http.StatusBadRequest)
		return
	}
	msg := string(body)

	s.mu.Lock()
	t := s.topics[name]
	if t == nil {
		t = &topic{}
		s.topics[name] = t
	}
	t.expiresAt = time.Now().Add(s.cfg.TopicTTL)

	if len(t.waiters) > 0 {
		// Hand the message straight to the oldest poller.
		ch := t.waiters[0]
		t.waiters = t.waiters[1:]
		ch <- msg
	} else {
		t.messages = append(t.messages, msg)
	}
	s.mu.Unlock()

	s.logger.Info("signal queued", "topic", name)
	w.WriteHeader(http.StatusNoContent)
}

// poll blocks until a message arrives or the hold period lapses (204).
func (s *Server) poll(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "topic")

	s.mu.Lock()
	t := s.topics[name]
	if t == nil {
		t = &topic{}
		s.topics[name] = t
	}
	t.expiresAt = time.Now().Add(s.cfg.TopicTTL)

	if len(t.messages) > 0 {
		msg := t.messages[0]
		t.messages = t.messages[1:]
		s.mu.Unlock()
		w.Write([]byte(msg))
		return
	}

	ch := make(chan string, 1)
	t.waiters = append(t.waiters, ch)
	s.mu.Unlock()

	select {
	case msg := <-ch:
		w.Write([]byte(msg))
	case <-time.After(s.cfg.PollHold):
		s.removeWaiter(name, ch)
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
		s.removeWaiter(name, ch)
	}
}

// removeWaiter unparks a poller that gave up. A message may already be in
// flight on the channel; requeue it so the next poll sees it.
func (s *Server) removeWaiter(name string, ch chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.topics[name]
	if t == nil {
		return
	}
	for i, w := range t.waiters {
		if w == ch {
			t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
			break
		}
	}
	select {
	case msg := <-ch:
		t.messages = append(t.messages, msg)
	default:
	}
}

// janitor evicts expired blobs and topics once a minute.
func (s *Server) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for h, b := range s.blobs {
				if now.After(b.expiresAt) {
					delete(s.blobs, h)
				}
			}
			for name, t := range s.topics {
				if now.After(t.expiresAt) && len(t.waiters) == 0 {
					delete(s.topics, name)
				}
			}
			s.mu.Unlock()
		}
	}
}
