package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/config"
	"github.com/cppla/vibemusic/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), config.GormConfig("silent"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", Score: models.DefaultUserScore}
	require.NoError(t, db.Create(u).Error)
	return u
}

func callerOf(u *models.User) Caller {
	return Caller{UserID: u.ID, Username: u.Username, Role: models.RoleUser}
}

var adminCaller = Caller{UserID: 9999, Username: "root", Role: models.RoleAdmin}

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string]Upload
	deleted []string
	failUp  bool
	seq     int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]Upload{}}
}

func (m *memStore) Upload(_ context.Context, folder string, file Upload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUp {
		return "", errors.New("upload failed")
	}
	m.seq++
	url := fmt.Sprintf("http://files.local/%s/%d-%s", folder, m.seq, file.Filename)
	m.objects[url] = file
	return url, nil
}

func (m *memStore) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, url)
	m.deleted = append(m.deleted, url)
	return nil
}

// recordingCache remembers invalidated tags and keeps values in memory.
type recordingCache struct {
	mu          sync.Mutex
	values      map[string]interface{}
	invalidated []string
	fail        bool
}

func newRecordingCache() *recordingCache {
	return &recordingCache{values: map[string]interface{}{}}
}

func (c *recordingCache) InvalidateTag(_ context.Context, tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, tag)
	if c.fail {
		return errors.New("cache down")
	}
	for k := range c.values {
		if len(k) > len(tag) && k[:len(tag)+1] == tag+":" {
			delete(c.values, k)
		}
	}
	return nil
}

func (c *recordingCache) GetJSON(_ context.Context, tag, key string, out interface{}) bool {
	return false
}

func (c *recordingCache) SetJSON(_ context.Context, tag, key string, v interface{}, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[tag+":"+key] = v
}

func (c *recordingCache) tags() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}

// afterFirstRead runs fn once, right after the next query that reads table. Tests use it to
// interleave a competing write between a service's read and its write.
func afterFirstRead(t *testing.T, db *gorm.DB, table string, fn func()) {
	t.Helper()
	fired := false
	err := db.Callback().Query().After("gorm:query").Register("test:after_read_"+table, func(tx *gorm.DB) {
		if fired || tx.Statement.Table != table {
			return
		}
		fired = true
		fn()
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.True(t, fired, "no read of %s happened", table)
	})
}

func claimedOrders(t *testing.T, db *gorm.DB, postID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.ForumOrder{}).
		Where("post_id = ? AND status IN ?", postID, models.ClaimedOrderStatuses).Count(&n).Error)
	return n
}
