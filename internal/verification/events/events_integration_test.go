//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Khrees2412/provepoc/internal/platform/config"
	"github.com/Khrees2412/provepoc/internal/platform/kafka"
	"github.com/Khrees2412/provepoc/internal/verification/events"
	"github.com/Khrees2412/provepoc/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaPublisherSuite) TestPublishedEventIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "provepoc.verifications.it"

	producer, err := kafka.NewProducer(ctx, config.KafkaConfig{
		Brokers:  []string{s.redpanda.Broker},
		Topic:    topic,
		ClientID: "provepoc-test",
	})
	s.Require().NoError(err)
	defer producer.Close()
	s.Require().NoError(kafka.EnsureTopic(ctx, producer, topic, 1, 1))
	s.Require().NoError(kafka.EnsureTopic(ctx, producer, topic, 1, 1), "ensuring twice is harmless")

	event := events.LifecycleEvent{
		Type:           events.TypeCreated,
		VerificationID: "v-it",
		MonoReference:  "ref-it",
		Status:         "pending",
		KYCLevel:       "tier_3",
		OccurredAt:     time.Now().UTC().Truncate(time.Second),
	}
	s.Require().NoError(events.NewKafkaPublisher(producer, topic).Publish(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	var got events.LifecycleEvent
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(event, got)
	s.Equal("ref-it", string(records[0].Key))
}
