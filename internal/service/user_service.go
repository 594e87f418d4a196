package service

import (
	"context"
	"strings"
	"time"

	"newsfeed/internal/middleware"
	"newsfeed/internal/models"
	"newsfeed/internal/repository"
	"newsfeed/internal/validation"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPrincipalCacheSize is used when no positive size is configured.
const DefaultPrincipalCacheSize = 1024

// DefaultPrincipalTTL bounds how long a rename, withdrawal or admin change made
// on another replica can go unseen here.
const DefaultPrincipalTTL = 30 * time.Second

const maxBioLen = 500

type UserService struct {
	userRepo   repository.UserRepository
	principals *expirable.LRU[uint, models.Principal]
	now        func() time.Time
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type UpdateProfileInput struct {
	UserID   uint
	Username string
	Bio      string
	Avatar   string
}

// UserOption configures a UserService.
type UserOption func(*userOptions)

type userOptions struct {
	principalTTL time.Duration
}

// WithPrincipalTTL sets how long a resolved principal is reused.
func WithPrincipalTTL(ttl time.Duration) UserOption {
	return func(o *userOptions) {
		if ttl > 0 {
			o.principalTTL = ttl
		}
	}
}

func NewUserService(userRepo repository.UserRepository, principalCacheSize int, opts ...UserOption) *UserService {
	if principalCacheSize <= 0 {
		principalCacheSize = DefaultPrincipalCacheSize
	}
	o := userOptions{principalTTL: DefaultPrincipalTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return &UserService{
		userRepo:   userRepo,
		principals: expirable.NewLRU[uint, models.Principal](principalCacheSize, nil, o.principalTTL),
		now:        time.Now,
	}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	if existing, err := s.userRepo.GetByUsername(ctx, in.Username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, models.NewConflictError("Username already taken")
	}
	if existing, err := s.userRepo.GetByEmail(ctx, in.Email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, models.NewConflictError("Email already registered")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hashed),
		Status:   models.UserStatusActive,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks credentials. Unknown users, wrong passwords and withdrawn
// accounts all come back as Unauthorized.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if !user.IsActive() {
		return nil, models.NewUnauthorizedError("Account has been withdrawn")
	}
	return user, nil
}

// Withdraw soft-disables the account after confirming the password.
func (s *UserService) Withdraw(ctx context.Context, userID uint, password string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsActive() {
		return models.NewNotFoundError("User", userID)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return models.NewUnauthorizedError("Password confirmation failed")
	}
	if err := s.userRepo.Withdraw(ctx, userID, s.now().UTC()); err != nil {
		return err
	}
	s.principals.Remove(userID)
	middleware.Logger.InfoContext(ctx, "user withdrawn", "user_id", userID, "username", user.Username)
	return nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// FindActiveByUsername resolves a username to a live account, NotFound otherwise.
func (s *UserService) FindActiveByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, models.NewNotFoundError("User", username)
	}
	return user, nil
}

// GetProfile returns the public view of an active user.
func (s *UserService) GetProfile(ctx context.Context, username string) (*models.User, error) {
	user, err := s.FindActiveByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	public := user.Public()
	return &public, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, models.NewNotFoundError("User", in.UserID)
	}

	if in.Username != "" && in.Username != user.Username {
		if err := validation.ValidateUsername(in.Username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Username = in.Username
	}
	if in.Bio != "" {
		if len(in.Bio) > maxBioLen {
			return nil, models.NewValidationError("Bio too long (max 500 characters)")
		}
		user.Bio = in.Bio
	}
	if in.Avatar != "" {
		user.Avatar = in.Avatar
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	s.principals.Remove(user.ID)
	return user, nil
}

func (s *UserService) SetAdmin(ctx context.Context, targetID uint, isAdmin bool) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if user.IsAdmin != isAdmin {
		if err := s.userRepo.SetAdmin(ctx, targetID, isAdmin); err != nil {
			return nil, err
		}
		user.IsAdmin = isAdmin
	}
	s.principals.Remove(targetID)
	return user, nil
}

// ResolvePrincipal maps an authenticated user id to the identity attached to requests.
// Withdrawn or deleted accounts are Unauthorized.
func (s *UserService) ResolvePrincipal(ctx context.Context, userID uint) (*models.Principal, error) {
	if p, ok := s.principals.Get(userID); ok {
		return &p, nil
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewUnauthorizedError("User no longer exists")
		}
		return nil, err
	}
	if !user.IsActive() {
		return nil, models.NewUnauthorizedError("Account has been withdrawn")
	}
	p := models.Principal{UserID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}
	s.principals.Add(userID, p)
	return &p, nil
}

// IsAdmin reports the admin flag; it is the ownership-override hook handed to other services.
func (s *UserService) IsAdmin(ctx context.Context, userID uint) (bool, error) {
	p, err := s.ResolvePrincipal(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.IsAdmin, nil
}
