package messageRepo

import (
	"context"
	"time"

	"github.com/dkuznets/cupid-bot/internal/entity"
	"gorm.io/gorm"
)

type IMessageRepo interface {
	CreateMessage(ctx context.Context, senderID, recipientID int64, text string) (*entity.Message, error)
	// GetHistory returns the messages exchanged between the two users in
	// both directions, oldest first.
	GetHistory(ctx context.Context, userID, matchedUserID int64) ([]entity.Message, error)
}

type MessageRepo struct {
	db *gorm.DB
}

func New(db *gorm.DB) IMessageRepo {
	return &MessageRepo{
		db: db,
	}
}

func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, recipientID int64, text string) (*entity.Message, error) {
	msg := entity.Message{
		UserID:        senderID,
		MatchedUserID: recipientID,
		Text:          text,
		CreatedAt:     time.Now(),
	}
	result := r.db.WithContext(ctx).Create(&msg)
	return &msg, result.Error
}

func (r *MessageRepo) GetHistory(ctx context.Context, userID, matchedUserID int64) ([]entity.Message, error) {
	var messages []entity.Message
	res := r.db.WithContext(ctx).
		Where("(user_id = ? AND matched_user_id = ?) OR (user_id = ? AND matched_user_id = ?)",
			userID, matchedUserID, matchedUserID, userID).
		Order("id ASC").
		Find(&messages)
	return messages, res.Error
}
