// Package pubsub announces retained listings on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/remote-job-crawler/internal/crawler"
)

// Message is the JSON payload published for each retained listing.
type Message struct {
	RunID           string    `json:"run_id"`
	Title           string    `json:"title"`
	DetailURL       string    `json:"detail_url"`
	MatchedKeywords []string  `json:"matched_keywords"`
	RecencyPhrase   string    `json:"recency_phrase"`
	Page            int       `json:"page"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}

// publisher is the subset of *pubsub.Topic the sink needs.
type publisher interface {
	publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
	stop()
}

type topicPublisher struct {
	topic *pubsub.Topic
}

func (t topicPublisher) publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	return t.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

func (t topicPublisher) stop() {
	t.topic.Stop()
}

// Sink publishes one message per retained verdict and waits for the server ack.
type Sink struct {
	pub   publisher
	runID string
}

// New returns a Sink publishing to topic.
func New(topic *pubsub.Topic, runID string) (*Sink, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &Sink{pub: topicPublisher{topic: topic}, runID: runID}, nil
}

// Persist publishes v and blocks until Pub/Sub acknowledges it.
func (s *Sink) Persist(ctx context.Context, v crawler.ListingVerdict) error {
	data, err := json.Marshal(Message{
		RunID:           s.runID,
		Title:           v.Title,
		DetailURL:       v.DetailURL,
		MatchedKeywords: v.MatchedKeywords,
		RecencyPhrase:   v.RecencyPhrase,
		Page:            v.Page,
		EvaluatedAt:     v.EvaluatedAt,
	})
	if err != nil {
		return fmt.Errorf("%w: marshal message: %w", crawler.ErrPersist, err)
	}
	attrs := map[string]string{"run_id": s.runID, "outcome": string(v.Outcome)}
	if _, err := s.pub.publish(ctx, data, attrs); err != nil {
		return fmt.Errorf("%w: publish message: %w", crawler.ErrPersist, err)
	}
	return nil
}

// Close flushes pending messages and stops the topic's publishing goroutines.
func (s *Sink) Close() error {
	s.pub.stop()
	return nil
}
