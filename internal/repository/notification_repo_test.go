package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/tripmate-api/internal/models"
)

func TestInboxPageClamps(t *testing.T) {
	limit, offset := InboxPage(0, -3)
	require.Equal(t, 50, limit)
	require.Zero(t, offset)

	limit, offset = InboxPage(500, 20)
	require.Equal(t, 100, limit)
	require.Equal(t, 20, offset)
}

func TestNotificationRepositoryInbox(t *testing.T) {
	db := setupTestDB(t, &models.Notification{})
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, title := range []string{"first", "second", "third"} {
		n := models.Notification{UserID: "u1", Type: "push", Title: title, Message: title, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, repo.Create(ctx, &n))
	}
	other := models.Notification{UserID: "u2", Type: "push", Message: "not yours"}
	require.NoError(t, repo.Create(ctx, &other))

	unread, err := repo.CountUnread(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 3, unread)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	marked, err := repo.MarkRead(ctx, 3, "u1", at)
	require.NoError(t, err)
	require.True(t, marked.Read)
	require.NotNil(t, marked.ReadAt)

	items, err := repo.ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "second", items[0].Title)
	require.Equal(t, "first", items[1].Title)
	require.Equal(t, "third", items[2].Title)

	_, err = repo.MarkRead(ctx, other.ID, "u1", at)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	updated, err := repo.MarkAllRead(ctx, "u1", at)
	require.NoError(t, err)
	require.EqualValues(t, 2, updated)

	unread, err = repo.CountUnread(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, unread)

	unread, err = repo.CountUnread(ctx, "u2")
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)
}

func TestUploadRepositoryFindInRoom(t *testing.T) {
	db := setupTestDB(t, &models.UploadRecord{})
	repo := NewUploadRepository(db)
	ctx := context.Background()

	missing, err := repo.FindInRoom(ctx, "room-1", "abc")
	require.NoError(t, err)
	require.Nil(t, missing)

	record := models.UploadRecord{UserID: "u1", RoomID: "room-1", FileName: "a.png", URL: "https://cdn/a.png", MimeType: "image/png", SizeBytes: 10, Checksum: "abc"}
	require.NoError(t, repo.Create(ctx, &record))

	found, err := repo.FindInRoom(ctx, "room-1", "abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "https://cdn/a.png", found.URL)

	elsewhere, err := repo.FindInRoom(ctx, "room-2", "abc")
	require.NoError(t, err)
	require.Nil(t, elsewhere)
}
