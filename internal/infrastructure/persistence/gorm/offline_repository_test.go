package gorm_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
	gormio "gorm.io/gorm"

	"github.com/narwhalmedia/narwhal-player/internal/config"
	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
	"github.com/narwhalmedia/narwhal-player/internal/domain/media"
	"github.com/narwhalmedia/narwhal-player/internal/infrastructure/persistence/gorm"
	"github.com/narwhalmedia/narwhal-player/test/testutil"
)

type OfflineRepositoryTestSuite struct {
	suite.Suite
	db   *gormio.DB
	repo *gorm.OfflineRepository
	ctx  context.Context
}

func (suite *OfflineRepositoryTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.db = gorm.NewTestDB(suite.T())
	suite.repo = gorm.NewOfflineRepository(suite.db)
}

func (suite *OfflineRepositoryTestSuite) TestSaveAndFind() {
	stored := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(suite.T(), suite.repo.Save(suite.ctx, testutil.CreateTestOfflineEntry("a", "/offline/a/a-1.mp4", stored)))

	got, err := suite.repo.FindByItemID(suite.ctx, "a")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Movie a", got.Item.Name)
	assert.Equal(suite.T(), "a-src", got.Source.ID)
	assert.Equal(suite.T(), "hevc", got.Source.VideoCodec())
	assert.Equal(suite.T(), download.KindRemux, got.Kind)
	assert.Equal(suite.T(), int64(4096), got.Size)
	assert.True(suite.T(), stored.Equal(got.StoredAt))
}

func (suite *OfflineRepositoryTestSuite) TestSaveReplacesEntry() {
	require.NoError(suite.T(), suite.repo.Save(suite.ctx, testutil.CreateTestOfflineEntry("a", "/offline/a/a-1.mp4", time.Now())))
	require.NoError(suite.T(), suite.repo.Save(suite.ctx, testutil.CreateTestOfflineEntry("a", "/offline/a/a-2.mp4", time.Now())))

	got, err := suite.repo.FindByItemID(suite.ctx, "a")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "/offline/a/a-2.mp4", got.Path)

	entries, _, err := suite.repo.LoadAll(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), entries, 1)
}

func (suite *OfflineRepositoryTestSuite) TestFindMissing() {
	_, err := suite.repo.FindByItemID(suite.ctx, "nope")
	assert.ErrorIs(suite.T(), err, download.ErrEntryNotFound)
}

func (suite *OfflineRepositoryTestSuite) TestLoadAllReportsCorruptRows() {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(suite.T(), suite.repo.Save(suite.ctx, testutil.CreateTestOfflineEntry("b", "/offline/b.mkv", base.Add(time.Hour))))
	require.NoError(suite.T(), suite.repo.Save(suite.ctx, testutil.CreateTestOfflineEntry("a", "/offline/a.mkv", base)))

	require.NoError(suite.T(), suite.db.Create(&gorm.OfflineEntryModel{
		ItemID:   "broken",
		Kind:     "raw",
		Path:     "/offline/broken.mkv",
		Snapshot: []byte("{not json"),
		StoredAt: base,
	}).Error)

	entries, corrupt, err := suite.repo.LoadAll(suite.ctx)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), entries, 2)
	assert.Equal(suite.T(), "a", entries[0].ItemID, "oldest first")
	assert.Equal(suite.T(), "b", entries[1].ItemID)
	assert.Equal(suite.T(), []string{"broken"}, corrupt)
}

func (suite *OfflineRepositoryTestSuite) TestDelete() {
	require.NoError(suite.T(), suite.repo.Save(suite.ctx, testutil.CreateTestOfflineEntry("a", "/offline/a.mkv", time.Now())))
	require.NoError(suite.T(), suite.repo.Delete(suite.ctx, "a"))

	_, err := suite.repo.FindByItemID(suite.ctx, "a")
	assert.ErrorIs(suite.T(), err, download.ErrEntryNotFound)
	assert.ErrorIs(suite.T(), suite.repo.Delete(suite.ctx, "a"), download.ErrEntryNotFound)
}

func TestOfflineRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(OfflineRepositoryTestSuite))
}

func TestEventStore(t *testing.T) {
	ctx := context.Background()
	store := gorm.NewEventStore(gorm.NewTestDB(t))

	item := media.Item{ID: "a", Name: "Movie"}
	job, err := download.NewJob(item, download.KindRaw)
	require.NoError(t, err)

	require.NoError(t, store.PublishEvent(ctx, download.NewDownloadQueued(job)))
	require.NoError(t, store.PublishEvent(ctx, download.NewDownloadCancelled(job, true)))

	other, err := download.NewJob(media.Item{ID: "b"}, download.KindRaw)
	require.NoError(t, err)
	require.NoError(t, store.PublishEvent(ctx, download.NewDownloadQueued(other)))

	history, err := store.History(ctx, job.ID(), 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "DownloadQueued", history[0].EventType)
	assert.Equal(t, "DownloadCancelled", history[1].EventType)
	assert.JSONEq(t, `{"item_id":"a","forced":true}`, string(history[1].Data))

	limited, err := store.History(ctx, job.ID(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := store.History(ctx, uuid.New(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNewDBSqlite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	db, cleanup, err := gorm.NewDB(config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         path,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		MaxLifetime:  time.Minute,
	}, false, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cleanup()

	assert.True(t, db.Migrator().HasTable(&gorm.OfflineEntryModel{}))
	assert.True(t, db.Migrator().HasTable(&gorm.EventModel{}))
	assert.FileExists(t, path)

	_, _, err = gorm.NewDB(config.DatabaseConfig{Driver: "mysql"}, false, zaptest.NewLogger(t))
	assert.Error(t, err)
}
