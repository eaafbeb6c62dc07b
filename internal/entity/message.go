package entity

import "time"

// Message is one relayed post-match text. Append-only; rows disappear
// only when either party resets their profile.
type Message struct {
	ID            int64     `gorm:"primaryKey;autoIncrement;column:id"`
	UserID        int64     `gorm:"not null;column:user_id;index"`
	MatchedUserID int64     `gorm:"not null;column:matched_user_id;index"`
	Text          string    `gorm:"not null;column:message"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (Message) TableName() string {
	return "messages"
}
