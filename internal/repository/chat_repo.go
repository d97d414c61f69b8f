package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/tripmate-api/internal/models"
)

// ChatRoomRepository is the local cache of remote chat rooms.
type ChatRoomRepository interface {
	Upsert(ctx context.Context, rooms ...models.ChatRoom) error
	FindByID(ctx context.Context, id string) (models.ChatRoom, error)
	ListForMember(ctx context.Context, userID, email string) ([]models.ChatRoom, error)
	UpdateLastMessage(ctx context.Context, id, text string, timestamp int64) error
}

// ChatMessageRepository is the local cache of chat messages, including unsynced ones.
type ChatMessageRepository interface {
	Upsert(ctx context.Context, messages ...models.ChatMessage) error
	FindByID(ctx context.Context, id string) (models.ChatMessage, error)
	MarkSynced(ctx context.Context, ids ...string) error
	Delete(ctx context.Context, ids ...string) error
	ListUnsynced(ctx context.Context, limit int) ([]models.ChatMessage, error)
	CountUnsynced(ctx context.Context) (int64, error)
	ListByRoom(ctx context.Context, roomID string, before int64, limit int) ([]models.ChatMessage, error)
}

type chatRoomRepository struct {
	db *gorm.DB
}

type chatMessageRepository struct {
	db *gorm.DB
}

// NewChatRoomRepository constructs a chat room cache backed by GORM.
func NewChatRoomRepository(db *gorm.DB) ChatRoomRepository {
	return &chatRoomRepository{db: db}
}

// NewChatMessageRepository constructs a chat message cache backed by GORM.
func NewChatMessageRepository(db *gorm.DB) ChatMessageRepository {
	return &chatMessageRepository{db: db}
}

func (r *chatRoomRepository) Upsert(ctx context.Context, rooms ...models.ChatRoom) error {
	if len(rooms) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "type", "creator_id", "member_ids", "member_emails", "trip_id", "last_message_text", "last_message_time", "updated_at"}),
	}).Create(&rooms).Error
}

func (r *chatRoomRepository) FindByID(ctx context.Context, id string) (models.ChatRoom, error) {
	var room models.ChatRoom
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error; err != nil {
		return models.ChatRoom{}, err
	}
	return room, nil
}

// ListForMember filters in memory because member lists are JSON columns.
func (r *chatRoomRepository) ListForMember(ctx context.Context, userID, email string) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	if err := r.db.WithContext(ctx).Order("last_message_time DESC").Find(&rooms).Error; err != nil {
		return nil, err
	}

	out := make([]models.ChatRoom, 0, len(rooms))
	for _, room := range rooms {
		if room.HasMember(userID, email) {
			out = append(out, room)
		}
	}
	return out, nil
}

func (r *chatRoomRepository) UpdateLastMessage(ctx context.Context, id, text string, timestamp int64) error {
	return r.db.WithContext(ctx).
		Model(&models.ChatRoom{}).
		Where("id = ? AND last_message_time <= ?", id, timestamp).
		Updates(map[string]interface{}{
			"last_message_text": text,
			"last_message_time": timestamp,
		}).Error
}

func (r *chatMessageRepository) Upsert(ctx context.Context, messages ...models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"room_id", "sender_id", "sender_name", "text", "image_url", "type", "timestamp", "synced", "updated_at"}),
	}).Create(&messages).Error
}

func (r *chatMessageRepository) FindByID(ctx context.Context, id string) (models.ChatMessage, error) {
	var message models.ChatMessage
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return models.ChatMessage{}, err
	}
	return message, nil
}

func (r *chatMessageRepository) MarkSynced(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.ChatMessage{}).Where("id IN ?", ids).Update("synced", true).Error
}

func (r *chatMessageRepository) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.ChatMessage{}).Error
}

func (r *chatMessageRepository) ListUnsynced(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var messages []models.ChatMessage
	if err := r.db.WithContext(ctx).Where("synced = ?", false).Order("timestamp ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *chatMessageRepository) CountUnsynced(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChatMessage{}).Where("synced = ?", false).Count(&count).Error
	return count, err
}

func (r *chatMessageRepository) ListByRoom(ctx context.Context, roomID string, before int64, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if before > 0 {
		query = query.Where("timestamp < ?", before)
	}

	var messages []models.ChatMessage
	if err := query.Order("timestamp DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
