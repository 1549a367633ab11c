package trees

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

// fakeClock lets tests advance time between operations.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, ids []string) (*Service, *gorm.DB, *fakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:arvoredo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&TreeRecord{}, &SequenceCounter{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}

	clock := &fakeClock{now: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)}
	service, err := NewService(ServiceConfig{
		Store:      store,
		Clock:      clock.Now,
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to construct tree service: %v", err)
	}

	return service, db, clock
}

func testActor() Actor {
	return Actor{
		ID:       1,
		Username: "surveyor",
		Email:    "surveyor@example.com",
		FullName: "Field Surveyor",
	}
}

func strPtr(value string) *string {
	return &value
}
