package ingest

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/rawblock/ethergraph-engine/pkg/models"
)

// KafkaConsumer feeds transactions published on a Kafka topic through the
// same ingestion path as the HTTP routes. It is an optional subsystem; the
// engine runs without it.
type KafkaConsumer struct {
	group sarama.ConsumerGroup
	topic string
	store Store
}

func NewKafkaConsumer(brokersCSV, groupID, topic string, store Store) (*KafkaConsumer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(splitBrokers(brokersCSV), groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaConsumer{group: group, topic: topic, store: store}, nil
}

func (k *KafkaConsumer) Close() error { return k.group.Close() }

// Run consumes until ctx is canceled. Sarama returns from Consume on every
// rebalance, so the loop re-enters it.
func (k *KafkaConsumer) Run(ctx context.Context) error {
	handler := &txHandler{store: k.store}
	for {
		if err := k.group.Consume(ctx, []string{k.topic}, handler); err != nil {
			log.Printf("[ingest] kafka consume error: %v", err)
			time.Sleep(300 * time.Millisecond)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type txHandler struct {
	store Store
}

var _ sarama.ConsumerGroupHandler = (*txHandler)(nil)

func (h *txHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *txHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *txHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var tx models.TransactionRecord
		if err := json.Unmarshal(msg.Value, &tx); err != nil {
			log.Printf("[ingest] kafka decode failed: p=%d off=%d err=%v", msg.Partition, msg.Offset, err)
			sess.MarkMessage(msg, "")
			continue
		}
		if tx.Hash == "" || tx.From == "" || tx.To == "" {
			log.Printf("[ingest] kafka message missing required fields: p=%d off=%d", msg.Partition, msg.Offset)
			sess.MarkMessage(msg, "")
			continue
		}

		if err := h.store.IngestTransactions(sess.Context(), []models.TransactionRecord{tx}); err != nil {
			// Leave the message unmarked so it is redelivered.
			log.Printf("[ingest] kafka persist failed: p=%d off=%d err=%v", msg.Partition, msg.Offset, err)
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

func splitBrokers(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
