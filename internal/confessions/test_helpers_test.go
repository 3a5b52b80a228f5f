package confessions

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// steppingClock advances one second on every read so creation order is observable.
type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{current: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "confessions.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err, "failed to open sqlite")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	require.NoError(t, db.AutoMigrate(Schema()...), "failed to migrate schema")
	return db
}

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	store, err := NewStore(StoreConfig{
		Database:   db,
		Clock:      newSteppingClock().Now,
		IDProvider: NewUUIDProvider(),
	})
	require.NoError(t, err, "failed to build store")
	return store, db
}

func mustCreate(t *testing.T, store *Store, content string, category Category) Confession {
	t.Helper()
	confession, err := store.Create(context.Background(), Draft{Content: content, Category: string(category)}, AnonymousCaller())
	require.NoError(t, err, "failed to create confession")
	return confession
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	require.NoError(t, err, "unexpected user id error")
	return id
}

func memberCaller(t *testing.T, value string) Caller {
	t.Helper()
	return AuthenticatedCaller(mustUserID(t, value), "Member "+value, false)
}

func moderatorCaller(t *testing.T) Caller {
	t.Helper()
	return AuthenticatedCaller(mustUserID(t, "moderator-1"), "Moderator", true)
}
