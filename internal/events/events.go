// Package events publishes ingestion progress to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// StreamIngestion captures every corpus.* subject.
const StreamIngestion = "CORPUS"

// Subjects.
const (
	SubjectBatchUpserted = "corpus.batch.upserted"
	SubjectRunCompleted  = "corpus.run.completed"
)

// BatchEvent is published after a batch is written to the vector store.
type BatchEvent struct {
	RunID     string    `json:"run_id"`
	Corpus    string    `json:"corpus"`
	Unit      string    `json:"unit"` // book slug or surah number
	Batch     int       `json:"batch"`
	Size      int       `json:"size"`
	Uploaded  int       `json:"uploaded"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// RunEvent is published when an ingestion run finishes.
type RunEvent struct {
	RunID      string        `json:"run_id"`
	Fetched    int           `json:"fetched"`
	Uploaded   int           `json:"uploaded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	FetchErrs  int           `json:"fetch_errors"`
	Duration   time.Duration `json:"duration_ns"`
	Canceled   bool          `json:"canceled,omitempty"`
	VectorsNow int64         `json:"vectors_now,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Nop discards every event.
type Nop struct{}

func (Nop) BatchUpserted(context.Context, BatchEvent) error { return nil }
func (Nop) RunCompleted(context.Context, RunEvent) error    { return nil }

// jetStream is the subset of nats.JetStreamContext the publisher uses.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Config holds NATS connection configuration.
type Config struct {
	URL            string
	Name           string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
	MaxAge         time.Duration // stream retention
}

// DefaultConfig returns a default configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		Name:           "hikma-ingest",
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		ConnectTimeout: 10 * time.Second,
		MaxAge:         7 * 24 * time.Hour,
	}
}

// Publisher sends ingestion events to JetStream.
type Publisher struct {
	conn   *nats.Conn
	js     jetStream
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	published int
}

// NewPublisher connects to NATS and makes sure the ingestion stream exists.
func NewPublisher(ctx context.Context, cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "events")

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("reconnected to NATS", "url", conn.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := newPublisher(js, cfg, logger)
	p.conn = conn
	if err := p.ensureStream(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("connected to NATS", "url", cfg.URL)
	return p, nil
}

func newPublisher(js jetStream, cfg Config, logger *slog.Logger) *Publisher {
	return &Publisher{js: js, config: cfg, logger: logger}
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	_, err := p.js.StreamInfo(StreamIngestion, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for %s: %w", StreamIngestion, err)
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:        StreamIngestion,
		Description: "Corpus ingestion progress",
		Subjects:    []string{"corpus.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		MaxMsgs:     -1,
		MaxBytes:    -1,
		Replicas:    1,
		Discard:     nats.DiscardOld,
	}, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", StreamIngestion, err)
	}
	p.logger.Info("created stream", "stream", StreamIngestion)
	return nil
}

// BatchUpserted publishes a batch event.
func (p *Publisher) BatchUpserted(ctx context.Context, ev BatchEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, SubjectBatchUpserted, ev)
}

// RunCompleted publishes the final run summary.
func (p *Publisher) RunCompleted(ctx context.Context, ev RunEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return p.publish(ctx, SubjectRunCompleted, ev)
}

func (p *Publisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()

	p.logger.Debug("published event", "subject", subject, "size", len(data))
	return nil
}

// Published returns the number of events acknowledged so far.
func (p *Publisher) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

// Close drains the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
