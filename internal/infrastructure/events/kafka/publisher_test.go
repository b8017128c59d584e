package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/infrastructure/events/kafka"
)

func TestPublisher_PublishEvent(t *testing.T) {
	job, err := download.NewJob(media.Item{ID: "item-1"}, download.KindRaw)
	require.NoError(t, err)
	event := download.NewDownloadFailed(job)

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "player.downloads", msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, job.ID().String(), string(key))

		require.Len(t, msg.Headers, 2)
		assert.Equal(t, "DownloadFailed", string(msg.Headers[0].Value))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var envelope map[string]interface{}
		require.NoError(t, json.Unmarshal(value, &envelope))
		assert.Equal(t, "DownloadFailed", envelope["event_type"])
		assert.Equal(t, "DownloadJob", envelope["aggregate_type"])
		return nil
	})

	p := kafka.NewPublisherWithProducer(producer, "player.downloads", zaptest.NewLogger(t))
	require.NoError(t, p.PublishEvent(context.Background(), event))
	require.NoError(t, p.Close())
}

func TestPublisher_SendFailure(t *testing.T) {
	job, err := download.NewJob(media.Item{ID: "item-1"}, download.KindRaw)
	require.NoError(t, err)

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	p := kafka.NewPublisherWithProducer(producer, "player.downloads", zaptest.NewLogger(t))
	err = p.PublishEvent(context.Background(), download.NewDownloadQueued(job))
	assert.ErrorContains(t, err, "broker down")
	require.NoError(t, p.Close())
}

func TestPublisher_CancelledContext(t *testing.T) {
	job, err := download.NewJob(media.Item{ID: "item-1"}, download.KindRaw)
	require.NoError(t, err)

	producer := mocks.NewSyncProducer(t, nil)
	p := kafka.NewPublisherWithProducer(producer, "player.downloads", zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.PublishEvent(ctx, download.NewDownloadQueued(job)), context.Canceled)
	require.NoError(t, p.Close())
}
