package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
	domainevents "github.com/narwhalmedia/narwhal-player/internal/domain/events"
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishEvent(ctx context.Context, event domainevents.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func TestDispatcherPublishesToAll(t *testing.T) {
	job, err := download.NewJob(media.Item{ID: "a"}, download.KindRaw)
	assert.NoError(t, err)
	event := download.NewDownloadQueued(job)

	failing := new(mockPublisher)
	failing.On("PublishEvent", mock.Anything, event).Return(errors.New("broker down"))
	ok := new(mockPublisher)
	ok.On("PublishEvent", mock.Anything, event).Return(nil)

	d := NewDispatcher(failing, nil, ok)
	err = d.PublishEvent(context.Background(), event)

	assert.ErrorContains(t, err, "broker down")
	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
}

func TestDispatcherEmpty(t *testing.T) {
	assert.NoError(t, NewDispatcher().PublishEvent(context.Background(), nil))
}
