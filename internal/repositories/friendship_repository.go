package repositories

import (
	"github.com/flicker-social/backend/internal/models"
	"gorm.io/gorm"
)

// FriendshipRepository supplies the friend graph the story feed reads from.
// The engine treats the id set as opaque input; request/accept flows live in
// a separate subsystem.
type FriendshipRepository interface {
	GetUserFriends(userID uint) ([]models.User, error)
	AreFriends(userID, otherID uint) (bool, error)
}

// PostgresFriendshipRepository implements FriendshipRepository for PostgreSQL
type PostgresFriendshipRepository struct {
	db *gorm.DB
}

// NewPostgresFriendshipRepository creates a new PostgresFriendshipRepository
func NewPostgresFriendshipRepository(db *gorm.DB) *PostgresFriendshipRepository {
	return &PostgresFriendshipRepository{db: db}
}

// GetUserFriends retrieves all accepted friends for a user
func (r *PostgresFriendshipRepository) GetUserFriends(userID uint) ([]models.User, error) {
	var friends []models.User
	subQuery1 := r.db.Table("friend_requests").Select("receiver_id").Where("sender_id = ? AND status = ?", userID, "accepted")
	subQuery2 := r.db.Table("friend_requests").Select("sender_id").Where("receiver_id = ? AND status = ?", userID, "accepted")

	if err := r.db.Where("id IN (?) OR id IN (?)", subQuery1, subQuery2).Find(&friends).Error; err != nil {
		return nil, mapGormError(err, "load friends")
	}
	return friends, nil
}

// AreFriends reports whether an accepted friendship exists between two users.
func (r *PostgresFriendshipRepository) AreFriends(userID, otherID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.FriendRequest{}).
		Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)) AND status = ?",
			userID, otherID, otherID, userID, "accepted").
		Count(&count).Error
	if err != nil {
		return false, mapGormError(err, "check friendship")
	}
	return count > 0, nil
}
