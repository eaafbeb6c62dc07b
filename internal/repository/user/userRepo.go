package userRepo

import (
	"context"
	"errors"

	"github.com/dkuznets/cupid-bot/internal/entity"
	"gorm.io/gorm"
)

type IUserRepo interface {
	CreateUser(ctx context.Context, user entity.User) (*entity.User, error)
	// GetUserByID returns (nil, nil) when no profile exists; an absent
	// profile is a normal state, not an error.
	GetUserByID(ctx context.Context, id int64) (*entity.User, error)
	UpdateMedia(ctx context.Context, id int64, ref string, kind entity.MediaKind) error
	UpdateBio(ctx context.Context, id int64, bio string) error
	UpdateLocation(ctx context.Context, id int64, latitude, longitude float64) error
	// DeleteUserCascade removes the profile and every like edge and
	// message row where the user appears on either side, atomically.
	DeleteUserCascade(ctx context.Context, id int64) error
	// GetRandomCandidate picks one profile uniformly at random excluding
	// the viewer and excludeIDs. Returns (nil, nil) when the pool is empty.
	GetRandomCandidate(ctx context.Context, viewerID int64, excludeIDs []int64) (*entity.User, error)
}

type UserRepo struct {
	db *gorm.DB
}

func New(db *gorm.DB) IUserRepo {
	return &UserRepo{
		db: db,
	}
}

func (r *UserRepo) CreateUser(ctx context.Context, user entity.User) (*entity.User, error) {
	result := r.db.WithContext(ctx).Create(&user)
	return &user, result.Error
}

func (r *UserRepo) GetUserByID(ctx context.Context, id int64) (*entity.User, error) {
	var user entity.User
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}

func (r *UserRepo) UpdateMedia(ctx context.Context, id int64, ref string, kind entity.MediaKind) error {
	return r.db.WithContext(ctx).
		Model(&entity.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"media_ref": ref, "media_kind": kind}).Error
}

func (r *UserRepo) UpdateBio(ctx context.Context, id int64, bio string) error {
	return r.db.WithContext(ctx).
		Model(&entity.User{}).
		Where("id = ?", id).
		Update("bio", bio).Error
}

func (r *UserRepo) UpdateLocation(ctx context.Context, id int64, latitude, longitude float64) error {
	return r.db.WithContext(ctx).
		Model(&entity.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"latitude": latitude, "longitude": longitude}).Error
}

func (r *UserRepo) DeleteUserCascade(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Delete(&entity.User{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR liked_user_id = ?", id, id).Delete(&entity.LikeEdge{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? OR matched_user_id = ?", id, id).Delete(&entity.Message{}).Error
	})
}

func (r *UserRepo) GetRandomCandidate(ctx context.Context, viewerID int64, excludeIDs []int64) (*entity.User, error) {
	exclude := make([]int64, 0, len(excludeIDs)+1)
	exclude = append(exclude, excludeIDs...)
	exclude = append(exclude, viewerID)

	var candidates []entity.User
	res := r.db.WithContext(ctx).
		Model(&entity.User{}).
		Where("id NOT IN ?", exclude).
		Order("RANDOM()").
		Limit(1).
		Find(&candidates)

	if res.Error != nil {
		return nil, res.Error
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}
