package entity

import "time"

// LikeEdge is a directed "viewer liked target" record. The pair is not
// unique at the schema level; the candidate query's exclusion makes
// repeats unreachable through normal browsing.
type LikeEdge struct {
	ID          int64     `gorm:"primaryKey;autoIncrement;column:id"`
	UserID      int64     `gorm:"not null;column:user_id;index"`
	LikedUserID int64     `gorm:"not null;column:liked_user_id;index"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (LikeEdge) TableName() string {
	return "likes"
}

type Decision uint

const (
	DecisionLike Decision = iota + 1
	DecisionDislike
)

func (d Decision) String() string {
	switch d {
	case DecisionLike:
		return "Like"
	case DecisionDislike:
		return "Dislike"
	default:
		return "Unknown"
	}
}

type Outcome uint

const (
	OutcomeMatch    Outcome = iota + 1 // both users like each other
	OutcomeLiked                       // like stored, no reciprocal yet
	OutcomePassed                      // dislike, nothing stored
	OutcomeNotFound                    // candidate profile no longer exists
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatch:
		return "Match"
	case OutcomeLiked:
		return "Liked"
	case OutcomePassed:
		return "Passed"
	case OutcomeNotFound:
		return "Not Found"
	default:
		return "Unknown"
	}
}
