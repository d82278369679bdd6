package repositories

import (
	"errors"

	"github.com/flicker-social/backend/internal/apperrors"
	"github.com/flicker-social/backend/internal/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	CreateUser(user *models.User) error
	GetUserByID(id uint) (*models.User, error)
	GetUserByFirebaseUID(firebaseUID string) (*models.User, error)
	GetUserByStoryKey(key string) (*models.User, error)
}

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *gorm.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func mapGormError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(err, apperrors.CodeNotFound, message)
	}
	return apperrors.Wrap(err, apperrors.CodeStorage, message)
}

// CreateUser creates a new user in PostgreSQL
func (r *PostgresUserRepository) CreateUser(user *models.User) error {
	return mapGormError(r.db.Create(user).Error, "create user")
}

// GetUserByID retrieves a user by ID from PostgreSQL
func (r *PostgresUserRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, mapGormError(err, "load user")
	}
	return &user, nil
}

// GetUserByFirebaseUID retrieves a user by Firebase UID from PostgreSQL
func (r *PostgresUserRepository) GetUserByFirebaseUID(firebaseUID string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("firebase_uid = ?", firebaseUID).First(&user).Error; err != nil {
		return nil, mapGormError(err, "load user by firebase uid")
	}
	return &user, nil
}

// GetUserByStoryKey resolves the string identity used inside story documents:
// a Firebase UID when linked, otherwise the numeric ID rendered as a string.
func (r *PostgresUserRepository) GetUserByStoryKey(key string) (*models.User, error) {
	user, err := r.GetUserByFirebaseUID(key)
	if err == nil {
		return user, nil
	}
	var byID models.User
	if dbErr := r.db.Where("CAST(id AS TEXT) = ?", key).First(&byID).Error; dbErr != nil {
		return nil, mapGormError(dbErr, "load user by story key")
	}
	return &byID, nil
}
