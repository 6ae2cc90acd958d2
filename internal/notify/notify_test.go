package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/groveapp/grove/internal/apperr"
	"github.com/groveapp/grove/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Notification{}, &models.NotificationPref{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return gdb
}

func countRows(t *testing.T, gdb *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := gdb.Model(&models.Notification{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func baseEvent(recipients ...string) Event {
	return Event{
		WorkspaceID: "ws-1",
		ActorID:     "actor",
		Type:        TypeTaskCreated,
		EntityType:  "task",
		EntityID:    "t-1",
		Recipients:  recipients,
	}
}

func TestDispatch_ExcludesActor(t *testing.T) {
	gdb := openTestDB(t)

	n, err := Dispatch(gdb, baseEvent("actor", "u1", "u2"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if n != 2 {
		t.Errorf("created = %d, want 2 (actor excluded)", n)
	}
	if got := countRows(t, gdb); got != 2 {
		t.Errorf("rows = %d, want 2", got)
	}
}

func TestDispatch_DedupWithinWindow(t *testing.T) {
	gdb := openTestDB(t)

	if _, err := Dispatch(gdb, baseEvent("u1")); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	n, err := Dispatch(gdb, baseEvent("u1"))
	if err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if n != 0 {
		t.Errorf("second dispatch created %d rows, want 0 (dedup)", n)
	}
	if got := countRows(t, gdb); got != 1 {
		t.Errorf("rows = %d, want 1", got)
	}
}

func TestDispatch_NoDedupOutsideWindow(t *testing.T) {
	gdb := openTestDB(t)

	if _, err := Dispatch(gdb, baseEvent("u1")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	// Age the first row past the window.
	old := time.Now().UTC().Add(-DedupWindow - time.Minute)
	if err := gdb.Model(&models.Notification{}).Where("user_id = ?", "u1").
		Update("created_at", old).Error; err != nil {
		t.Fatalf("age row: %v", err)
	}

	n, err := Dispatch(gdb, baseEvent("u1"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if n != 1 {
		t.Errorf("created = %d, want 1 (outside dedup window)", n)
	}
	if got := countRows(t, gdb); got != 2 {
		t.Errorf("rows = %d, want 2", got)
	}
}

func TestDispatch_DistinctDedupKeys(t *testing.T) {
	gdb := openTestDB(t)

	ev := baseEvent("u1")
	ev.DedupKey = "task:a"
	if _, err := Dispatch(gdb, ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	ev.DedupKey = "task:b"
	n, err := Dispatch(gdb, ev)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if n != 1 {
		t.Errorf("created = %d, want 1 (different dedup key)", n)
	}
}

func TestDispatch_PreferenceDisabled(t *testing.T) {
	gdb := openTestDB(t)

	typ := TypeTaskCreated
	if _, err := UpsertPref(gdb, "u1", nil, &typ, ChannelInApp, false); err != nil {
		t.Fatalf("UpsertPref: %v", err)
	}

	n, err := Dispatch(gdb, baseEvent("u1", "u2"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if n != 1 {
		t.Errorf("created = %d, want 1 (u1 opted out)", n)
	}
	var row models.Notification
	if err := gdb.First(&row).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.UserID != "u2" {
		t.Errorf("row went to %s, want u2", row.UserID)
	}
}

func TestAllowed_MostSpecificWins(t *testing.T) {
	gdb := openTestDB(t)

	ws := "ws-1"
	typ := TypeTaskCreated

	// Global opt-out, workspace-specific opt-in: workspace wins.
	if _, err := UpsertPref(gdb, "u1", nil, nil, ChannelInApp, false); err != nil {
		t.Fatalf("UpsertPref global: %v", err)
	}
	if _, err := UpsertPref(gdb, "u1", &ws, &typ, ChannelInApp, true); err != nil {
		t.Fatalf("UpsertPref specific: %v", err)
	}

	allowed, err := Allowed(gdb, "u1", ws, typ, ChannelInApp)
	if err != nil {
		t.Fatalf("Allowed: %v", err)
	}
	if !allowed {
		t.Error("specific opt-in should win over global opt-out")
	}

	// A different workspace only sees the global row.
	allowed, err = Allowed(gdb, "u1", "ws-other", typ, ChannelInApp)
	if err != nil {
		t.Fatalf("Allowed: %v", err)
	}
	if allowed {
		t.Error("global opt-out should apply in other workspaces")
	}
}

func TestAllowed_DefaultEnabled(t *testing.T) {
	gdb := openTestDB(t)
	allowed, err := Allowed(gdb, "nobody", "ws-1", TypeTaskUpdated, ChannelInApp)
	if err != nil {
		t.Fatalf("Allowed: %v", err)
	}
	if !allowed {
		t.Error("no preference rows should default to enabled")
	}
}

func TestUpsertPref_UpdatesInPlace(t *testing.T) {
	gdb := openTestDB(t)

	p1, err := UpsertPref(gdb, "u1", nil, nil, ChannelSlack, false)
	if err != nil {
		t.Fatalf("UpsertPref: %v", err)
	}
	p2, err := UpsertPref(gdb, "u1", nil, nil, ChannelSlack, true)
	if err != nil {
		t.Fatalf("UpsertPref second: %v", err)
	}
	if p1.ID != p2.ID {
		t.Errorf("upsert created a new row: %d != %d", p1.ID, p2.ID)
	}
	prefs, err := Preferences(gdb, "u1")
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if len(prefs) != 1 || !prefs[0].Enabled {
		t.Errorf("prefs = %+v, want one enabled row", prefs)
	}
}

func TestUpsertPref_UnknownChannel(t *testing.T) {
	gdb := openTestDB(t)
	_, err := UpsertPref(gdb, "u1", nil, nil, "carrier_pigeon", true)
	if !apperr.Is(err, apperr.Validation) {
		t.Errorf("err = %v, want Validation", err)
	}
}

func seedFeed(t *testing.T, gdb *gorm.DB, userID string, n int) {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < n; i++ {
		ev := baseEvent(userID)
		ev.DedupKey = fmt.Sprintf("seed-%d", i)
		if _, err := Dispatch(gdb, ev); err != nil {
			t.Fatalf("seed dispatch %d: %v", i, err)
		}
		// Space rows one second apart, oldest first.
		if err := gdb.Model(&models.Notification{}).
			Where("user_id = ? AND dedup_key = ?", userID, ev.DedupKey).
			Update("created_at", base.Add(time.Duration(i)*time.Second)).Error; err != nil {
			t.Fatalf("space row: %v", err)
		}
	}
}

func TestFeed_CursorPagination(t *testing.T) {
	gdb := openTestDB(t)
	seedFeed(t, gdb, "u1", 5)

	page1, cursor, err := Feed(gdb, "u1", FeedOpts{Limit: 2})
	if err != nil {
		t.Fatalf("Feed page1: %v", err)
	}
	if len(page1) != 2 || cursor == "" {
		t.Fatalf("page1 = %d rows, cursor %q", len(page1), cursor)
	}
	if page1[0].CreatedAt.Before(page1[1].CreatedAt) {
		t.Error("feed not descending")
	}

	page2, cursor2, err := Feed(gdb, "u1", FeedOpts{Limit: 2, Cursor: cursor})
	if err != nil {
		t.Fatalf("Feed page2: %v", err)
	}
	if len(page2) != 2 || cursor2 == "" {
		t.Fatalf("page2 = %d rows, cursor %q", len(page2), cursor2)
	}
	if !page2[0].CreatedAt.Before(page1[1].CreatedAt) && page2[0].ID == page1[1].ID {
		t.Error("page2 re-served a page1 row")
	}

	page3, cursor3, err := Feed(gdb, "u1", FeedOpts{Limit: 2, Cursor: cursor2})
	if err != nil {
		t.Fatalf("Feed page3: %v", err)
	}
	if len(page3) != 1 || cursor3 != "" {
		t.Errorf("page3 = %d rows, cursor %q; want 1 row and empty cursor", len(page3), cursor3)
	}

	seen := make(map[string]bool)
	for _, rows := range [][]models.Notification{page1, page2, page3} {
		for _, r := range rows {
			if seen[r.ID] {
				t.Errorf("row %s served twice", r.ID)
			}
			seen[r.ID] = true
		}
	}
	if len(seen) != 5 {
		t.Errorf("pages covered %d rows, want 5", len(seen))
	}
}

func TestFeed_StableUnderConcurrentInserts(t *testing.T) {
	gdb := openTestDB(t)
	seedFeed(t, gdb, "u1", 4)

	page1, cursor, err := Feed(gdb, "u1", FeedOpts{Limit: 2})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}

	// A new notification arrives between page fetches.
	ev := baseEvent("u1")
	ev.DedupKey = "fresh"
	if _, err := Dispatch(gdb, ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	page2, _, err := Feed(gdb, "u1", FeedOpts{Limit: 10, Cursor: cursor})
	if err != nil {
		t.Fatalf("Feed page2: %v", err)
	}
	for _, r := range page2 {
		if r.DedupKey == "fresh" {
			t.Error("new row appeared after the cursor")
		}
		for _, p := range page1 {
			if r.ID == p.ID {
				t.Errorf("row %s served twice", r.ID)
			}
		}
	}
}

func TestFeed_BadCursor(t *testing.T) {
	gdb := openTestDB(t)
	_, _, err := Feed(gdb, "u1", FeedOpts{Cursor: "not-base64!!"})
	if !apperr.Is(err, apperr.Validation) {
		t.Errorf("err = %v, want Validation", err)
	}
}

func TestMarkReadUnreadAndCounts(t *testing.T) {
	gdb := openTestDB(t)

	if _, err := Dispatch(gdb, baseEvent("u1")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var row models.Notification
	if err := gdb.First(&row).Error; err != nil {
		t.Fatalf("load: %v", err)
	}

	n, err := UnreadCount(gdb, "u1", "")
	if err != nil || n != 1 {
		t.Fatalf("UnreadCount = %d, %v; want 1", n, err)
	}

	if err := MarkRead(gdb, "u1", row.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n, _ = UnreadCount(gdb, "u1", ""); n != 0 {
		t.Errorf("unread after read = %d, want 0", n)
	}

	if err := MarkUnread(gdb, "u1", row.ID); err != nil {
		t.Fatalf("MarkUnread: %v", err)
	}
	if n, _ = UnreadCount(gdb, "u1", "ws-1"); n != 1 {
		t.Errorf("unread after unread = %d, want 1", n)
	}

	// Another user can't touch the row.
	if err := MarkRead(gdb, "intruder", row.ID); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("cross-user MarkRead err = %v, want NotFound", err)
	}
}

func TestMarkAllRead(t *testing.T) {
	gdb := openTestDB(t)
	seedFeed(t, gdb, "u1", 3)

	n, err := MarkAllRead(gdb, "u1", "ws-1")
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if n != 3 {
		t.Errorf("marked = %d, want 3", n)
	}
	if c, _ := UnreadCount(gdb, "u1", ""); c != 0 {
		t.Errorf("unread = %d, want 0", c)
	}
}

func TestSoftDelete_ExcludedFromFeedAndCounts(t *testing.T) {
	gdb := openTestDB(t)

	if _, err := Dispatch(gdb, baseEvent("u1")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var row models.Notification
	gdb.First(&row)

	if err := SoftDelete(gdb, "u1", row.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	rows, _, err := Feed(gdb, "u1", FeedOpts{})
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("feed has %d rows after soft delete, want 0", len(rows))
	}
	if n, _ := UnreadCount(gdb, "u1", ""); n != 0 {
		t.Errorf("unread = %d, want 0", n)
	}
	// Row is retained.
	if countRows(t, gdb) != 1 {
		t.Error("soft delete removed the row")
	}
	// Second soft delete reports not found.
	if err := SoftDelete(gdb, "u1", row.ID); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("repeat SoftDelete err = %v, want NotFound", err)
	}
}

func TestSweepExpired(t *testing.T) {
	gdb := openTestDB(t)
	seedFeed(t, gdb, "u1", 2)

	// Expire one row.
	var first models.Notification
	gdb.Order("created_at ASC").First(&first)
	if err := gdb.Model(&models.Notification{}).Where("id = ?", first.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("expire row: %v", err)
	}

	removed, err := SweepExpired(gdb)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if countRows(t, gdb) != 1 {
		t.Errorf("rows after sweep = %d, want 1", countRows(t, gdb))
	}
}

func TestDispatch_RollbackLeavesNothing(t *testing.T) {
	gdb := openTestDB(t)

	sentinel := gorm.ErrInvalidData
	err := gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := Dispatch(tx, baseEvent("u1")); err != nil {
			t.Fatalf("Dispatch in tx: %v", err)
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("transaction err = %v", err)
	}
	if countRows(t, gdb) != 0 {
		t.Error("rows written despite rollback")
	}
}
