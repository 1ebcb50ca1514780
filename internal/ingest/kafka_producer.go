// Package ingest moves accepted location fixes onto the broker so the
// tracker process can maintain the per-ride windows independently of
// the API's lifecycle.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/careride/internal/models"
)

// FixEnvelope is the broker record for one batch of fixes from a
// single ride. Keyed by ride so a ride's fixes stay ordered within a
// partition.
type FixEnvelope struct {
	RideID   string               `json:"ride_id"`
	DriverID string               `json:"driver_id"`
	Fixes    []models.LocationFix `json:"fixes"`
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishFixBatch(ctx context.Context, env FixEnvelope) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal fix batch: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(env.RideID), Value: b})
}

// PublishFix publishes a single fix as its own envelope. The hub uses
// this when the tracker process owns the window writes.
func (k *KafkaProducer) PublishFix(ctx context.Context, rideID, driverID string, fix models.LocationFix) error {
	return k.PublishFixBatch(ctx, FixEnvelope{RideID: rideID, DriverID: driverID, Fixes: []models.LocationFix{fix}})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
