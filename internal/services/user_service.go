package services

import (
	"context"
	"errors"
	"regexp"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ticketi/ticketi/internal/apperr"
	"github.com/ticketi/ticketi/internal/models"
	"github.com/ticketi/ticketi/internal/monitoring"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// ProfilePatch carries the updatable profile fields; nil means "leave as is".
type ProfilePatch struct {
	Username *string
	Password *string
}

func validateUsername(username string) error {
	if len(username) < 3 {
		return apperr.Validation("username must be at least 3 characters long")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return apperr.Validation("password must be at least 6 characters long")
	}
	return nil
}

// duplicateToConflict turns the driver's unique-violation error into the
// conflict kind. It backstops the lookup checks, which two concurrent
// registrations can both pass before either row is inserted.
func duplicateToConflict(err error, message string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.KindConflict, message, err)
	}
	return err
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if !emailPattern.MatchString(email) {
		return nil, apperr.Validation("invalid email format")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var existing models.User
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, apperr.Conflict("email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		return nil, apperr.Conflict("username already taken")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := db.Create(&user).Error; err != nil {
		if conflict := duplicateToConflict(err, "email or username already taken"); conflict != err {
			return nil, conflict
		}
		logger.Error().Err(err).Str("email", email).Msg("failed to create user")
		return nil, err
	}

	monitoring.UserRegistered()
	return &user, nil
}

// Authenticate verifies the credentials and returns the user identity. The
// caller is responsible for minting whatever session credential it uses.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Authentication("invalid email or password")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Authentication("invalid email or password")
	}

	return &user, nil
}

func (s *UserService) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return &user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*models.User, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}

	if patch.Username != nil && *patch.Username != user.Username {
		if err := validateUsername(*patch.Username); err != nil {
			return nil, err
		}
		var other models.User
		if err := db.Where("username = ? AND id <> ?", *patch.Username, userID).First(&other).Error; err == nil {
			return nil, apperr.Conflict("username already taken")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		user.Username = *patch.Username
	}

	if patch.Password != nil {
		if err := validatePassword(*patch.Password); err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = string(hash)
	}

	if err := db.Save(&user).Error; err != nil {
		if conflict := duplicateToConflict(err, "username already taken"); conflict != err {
			return nil, conflict
		}
		logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to update profile")
		return nil, err
	}

	return &user, nil
}
