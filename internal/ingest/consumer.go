package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mrwolf/moodtrack/internal/db"
	"github.com/mrwolf/moodtrack/internal/models"
	"github.com/mrwolf/moodtrack/internal/trends"
)

// Config holds the topic and consumer group to read mood events from
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
	// RetryBackoff is the first wait after a storage failure; it doubles up
	// to maxRetryBackoff while the store keeps failing.
	RetryBackoff time.Duration
}

const maxRetryBackoff = 30 * time.Second

// errRetryable marks failures where the event is fine but could not be
// stored. The offset is not committed until the store accepts it.
var errRetryable = errors.New("retryable")

// fetcher is the part of *kafka.Reader the consumer uses
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Store is where decoded events land
type Store interface {
	InsertObservation(id, user, label string, observedAt any, source string) error
}

// Counter counts stored observations by channel
type Counter interface {
	ObservationIngested(channel string)
}

// Consumer reads mood events from Kafka and stores them as observations.
// Messages that cannot be decoded are logged and committed so one bad
// payload does not stall the partition. Storage failures are retried with
// backoff and the message is committed only once stored.
type Consumer struct {
	cfg      Config
	reader   fetcher
	store    Store
	counter  Counter
	validate *validator.Validate
	clock    func() time.Time
	wait     func(ctx context.Context, d time.Duration) error
}

// NewConsumer builds a consumer-group reader for cfg
func NewConsumer(cfg Config, store Store, counter Counter) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    1e6,
	})
	return newConsumer(cfg, reader, store, counter), nil
}

func newConsumer(cfg Config, r fetcher, store Store, counter Counter) *Consumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Consumer{
		cfg:      cfg,
		reader:   r,
		store:    store,
		counter:  counter,
		validate: validator.New(),
		clock:    time.Now,
		wait:     waitBackoff,
	}
}

// Close shuts down the underlying reader
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run consumes until ctx is cancelled or the reader is closed
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf("Consuming mood events from %s (group %s, brokers %s)",
		c.cfg.Topic, c.cfg.GroupID, strings.Join(c.cfg.Brokers, ","))
	defer log.Println("Mood event consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			log.Printf("Error fetching mood event: %v", err)
			continue
		}

		if err := c.handleWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Skipping mood event at %s/%d/%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				log.Printf("Error committing offset %d: %v", msg.Offset, err)
			}
		}
		commitCancel()
	}
}

// handleWithRetry keeps retrying storage failures until they clear or ctx is
// done. Any other error is returned for the caller to log and commit past.
func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	backoff := c.cfg.RetryBackoff
	for {
		err := c.handle(msg)
		if err == nil || !errors.Is(err, errRetryable) {
			return err
		}
		log.Printf("Storing mood event at %s/%d/%d failed, retrying in %s: %v",
			msg.Topic, msg.Partition, msg.Offset, backoff, err)
		if waitErr := c.wait(ctx, backoff); waitErr != nil {
			return waitErr
		}
		backoff *= 2
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// handle decodes and stores one message. A redelivered message maps to the
// same observation id and is ignored.
func (c *Consumer) handle(msg kafka.Message) error {
	ev, err := decodeEvent(msg.Value)
	if err != nil {
		return err
	}
	if err := c.validate.Struct(ev); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	observedAt := any(c.clock().UTC().Format(time.RFC3339Nano))
	if ev.ObservedAt != nil {
		stored, ok := trends.StorageForm(ev.ObservedAt)
		if !ok {
			return fmt.Errorf("unreadable observed_at %v", ev.ObservedAt)
		}
		observedAt = stored
	}
	source := ev.Source
	if source == "" {
		source = models.ChannelKafka
	}

	id := messageID(msg)
	err = c.store.InsertObservation(id, ev.User, ev.Label, observedAt, source)
	if errors.Is(err, db.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: storing observation: %w", errRetryable, err)
	}
	if c.counter != nil {
		c.counter.ObservationIngested(models.ChannelKafka)
	}
	return nil
}

func decodeEvent(raw []byte) (models.MoodEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var ev models.MoodEvent
	if err := dec.Decode(&ev); err != nil {
		return models.MoodEvent{}, fmt.Errorf("decoding mood event: %w", err)
	}
	ev.User = strings.TrimSpace(ev.User)
	return ev, nil
}

// messageID is stable across redeliveries of the same record
func messageID(msg kafka.Message) string {
	name := msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10)
	return "obs_" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("kafka:"+name)).String()
}
