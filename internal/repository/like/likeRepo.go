package likeRepo

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dkuznets/cupid-bot/internal/entity"
	"github.com/go-redis/redis"
	"gorm.io/gorm"
)

const likedCacheTTL = 24 * time.Hour

type ILikeRepo interface {
	// CreateLike inserts the viewer→target edge and reports whether the
	// reciprocal edge exists. Insert and check run in one transaction
	// serialized per unordered pair, so two users liking each other at
	// the same instant produce exactly one mutual=true result.
	CreateLike(ctx context.Context, userID, likedUserID int64) (mutual bool, err error)
	HasLike(ctx context.Context, userID, likedUserID int64) (bool, error)
	// GetLikedProfileIDs returns every ID the user has liked; served from
	// the redis set cache when warm, rebuilt from the database otherwise.
	GetLikedProfileIDs(ctx context.Context, userID int64) ([]int64, error)
	// InvalidateCache drops the user's cached liked-ID set. Called on
	// profile reset; the database rows are removed by the user cascade.
	InvalidateCache(userID int64)
	// InvalidateLikerCaches removes the user from the cached liked-ID set
	// of every viewer who liked them. Must run before the like edges are
	// deleted; otherwise a profile recreated under the same ID stays
	// excluded from those viewers' pools until the cache TTL expires.
	InvalidateLikerCaches(ctx context.Context, likedUserID int64) error
}

type LikeRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

func New(db *gorm.DB, rdb *redis.Client) ILikeRepo {
	return &LikeRepo{
		db:  db,
		rdb: rdb,
	}
}

func likedProfilesKey(userID int64) string {
	return fmt.Sprintf("user:%d:likes:profiles", userID)
}

func (r *LikeRepo) CreateLike(ctx context.Context, userID, likedUserID int64) (bool, error) {
	var mutual bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lo, hi := userID, likedUserID
		if lo > hi {
			lo, hi = hi, lo
		}

		// Advisory lock on the unordered pair serializes the
		// insert-then-check of simultaneous mutual likes.
		pairKey := fmt.Sprintf("like:%d:%d", lo, hi)
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", pairKey).Error; err != nil {
			return err
		}

		edge := entity.LikeEdge{
			UserID:      userID,
			LikedUserID: likedUserID,
			CreatedAt:   time.Now(),
		}
		if err := tx.Create(&edge).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&entity.LikeEdge{}).
			Where("user_id = ? AND liked_user_id = ?", likedUserID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		mutual = count > 0
		return nil
	})

	if err != nil {
		return false, err
	}

	r.appendLikedCache(userID, likedUserID)
	return mutual, nil
}

func (r *LikeRepo) HasLike(ctx context.Context, userID, likedUserID int64) (bool, error) {
	var count int64
	res := r.db.WithContext(ctx).
		Model(&entity.LikeEdge{}).
		Where("user_id = ? AND liked_user_id = ?", userID, likedUserID).
		Count(&count)
	return count > 0, res.Error
}

func (r *LikeRepo) GetLikedProfileIDs(ctx context.Context, userID int64) ([]int64, error) {
	key := likedProfilesKey(userID)

	exists, err := r.rdb.Exists(key).Result()
	if err == nil && exists > 0 {
		var ids []int64
		if err := r.rdb.SMembers(key).ScanSlice(&ids); err == nil {
			return ids, nil
		}
	}

	var ids []int64
	res := r.db.WithContext(ctx).
		Model(&entity.LikeEdge{}).
		Select("liked_user_id").
		Where("user_id = ?", userID).
		Find(&ids)
	if res.Error != nil {
		return nil, res.Error
	}

	if len(ids) > 0 {
		members := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			members = append(members, id)
		}
		if err := r.rdb.SAdd(key, members...).Err(); err != nil {
			log.Println("error seeding liked profiles cache:", err)
		}
		r.rdb.Expire(key, likedCacheTTL)
	}

	return ids, nil
}

func (r *LikeRepo) InvalidateCache(userID int64) {
	if err := r.rdb.Del(likedProfilesKey(userID)).Err(); err != nil {
		log.Println("error invalidating liked profiles cache:", err)
	}
}

func (r *LikeRepo) InvalidateLikerCaches(ctx context.Context, likedUserID int64) error {
	var likerIDs []int64
	res := r.db.WithContext(ctx).
		Model(&entity.LikeEdge{}).
		Select("user_id").
		Where("liked_user_id = ?", likedUserID).
		Find(&likerIDs)
	if res.Error != nil {
		return res.Error
	}

	for _, likerID := range likerIDs {
		if err := r.rdb.SRem(likedProfilesKey(likerID), likedUserID).Err(); err != nil {
			log.Println("error pruning liked profiles cache:", err)
		}
	}
	return nil
}

func (r *LikeRepo) appendLikedCache(userID, likedUserID int64) {
	key := likedProfilesKey(userID)

	// Only extend a warm cache; a cold cache is rebuilt from the
	// database on the next read.
	exists, err := r.rdb.Exists(key).Result()
	if err != nil || exists == 0 {
		return
	}
	if err := r.rdb.SAdd(key, likedUserID).Err(); err != nil {
		log.Println("error updating liked profiles cache:", err)
	}
	r.rdb.Expire(key, likedCacheTTL)
}
