package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/vibemusic/models"
	"github.com/cppla/vibemusic/utils"
)

const (
	loginTokenTTL     = 72 * time.Hour
	emailCodeTTL      = 10 * time.Minute
	emailCodeCooldown = 60 * time.Second
)

// LoginTokens tracks issued login tokens; a token missing from the store is no longer valid.
type LoginTokens interface {
	Save(ctx context.Context, token string, ttl time.Duration) error
	Exists(ctx context.Context, token string) bool
	Remove(ctx context.Context, token string) error
}

// VerificationCodes stores email verification codes.
type VerificationCodes interface {
	TryCooldown(email string, d time.Duration) bool
	Save(email, code string, ttl time.Duration)
	VerifyAndConsume(email, code string) bool
}

// Mailer sends plain text mail.
type Mailer interface {
	Send(to, subject, body string) error
}

// TokenIssuer signs a login token.
type TokenIssuer func(userID uint, username, role string, ttl time.Duration) (string, error)

// AccountDeps bundles the collaborators of AccountService.
type AccountDeps struct {
	Tokens         LoginTokens
	Codes          VerificationCodes
	Mailer         Mailer
	Issue          TokenIssuer
	Store          ObjectStore
	AdminUsernames []string
}

// AccountService handles registration, login and profile maintenance.
type AccountService struct {
	db   *gorm.DB
	deps AccountDeps
	log  *zap.Logger
}

func NewAccountService(db *gorm.DB, deps AccountDeps, log *zap.Logger) *AccountService {
	return &AccountService{db: db, deps: deps, log: loggerOrNop(log)}
}

// RoleFor returns the role granted to username.
func (s *AccountService) RoleFor(username string) string {
	uname := strings.TrimSpace(username)
	for _, u := range s.deps.AdminUsernames {
		if uname != "" && strings.EqualFold(strings.TrimSpace(u), uname) {
			return models.RoleAdmin
		}
	}
	return models.RoleUser
}

// SendEmailCode mails a registration code to email, at most once per cooldown window.
func (s *AccountService) SendEmailCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return newError(ErrInvalidRequest, "a valid email is required")
	}
	if !s.deps.Codes.TryCooldown(email, emailCodeCooldown) {
		return newError(ErrRateLimited, "code requested too often, try again later")
	}
	code := utils.GenerateVerificationCode(6)
	body := fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)
	if err := s.deps.Mailer.Send(email, "Vibe Music verification code", body); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	// Store only after delivery so failed sends leave nothing behind.
	s.deps.Codes.Save(email, code, emailCodeTTL)
	return nil
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Confirm  string
	Code     string
}

// LoginResult is returned by Register and Login.
type LoginResult struct {
	Token string       `json:"token"`
	Role  string       `json:"role"`
	User  *models.User `json:"user"`
}

// Register creates an account after checking the emailed code and logs it in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if l := len([]rune(in.Username)); l < 2 || l > 15 || !validUsername(in.Username) {
		return nil, newError(ErrInvalidRequest, "username must be 2-15 letters, digits, CJK characters or '-'")
	}
	if in.Password != in.Confirm {
		return nil, newError(ErrInvalidRequest, "passwords do not match")
	}
	if len(in.Password) < 6 || len(in.Password) > 18 || !validPassword(in.Password) {
		return nil, newError(ErrInvalidRequest, "password must be 6-18 characters of letters, digits and -_.")
	}
	if in.Email == "" || strings.TrimSpace(in.Code) == "" {
		return nil, newError(ErrInvalidRequest, "email and verification code are required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.User{}).Where("username = ?", in.Username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if count > 0 {
		return nil, newError(ErrConflict, "username already exists")
	}
	if !s.deps.Codes.VerifyAndConsume(in.Email, strings.TrimSpace(in.Code)) {
		return nil, newError(ErrInvalidRequest, "verification code is invalid or expired")
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Score:        models.DefaultUserScore,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, newError(ErrConflict, "username already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return s.login(ctx, &user)
}

// Login checks credentials and issues a token recorded in the login token store.
func (s *AccountService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrUnauthenticated, "invalid username or password")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, newError(ErrUnauthenticated, "invalid username or password")
	}
	if user.Status == models.UserDisabled {
		return nil, newError(ErrForbidden, "account is disabled")
	}
	return s.login(ctx, &user)
}

func (s *AccountService) login(ctx context.Context, user *models.User) (*LoginResult, error) {
	role := s.RoleFor(user.Username)
	token, err := s.deps.Issue(user.ID, user.Username, role, loginTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	if err := s.deps.Tokens.Save(ctx, token, loginTokenTTL); err != nil {
		return nil, fmt.Errorf("store login token: %w", err)
	}
	return &LoginResult{Token: token, Role: role, User: user}, nil
}

// Logout forgets a login token.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	if err := s.deps.Tokens.Remove(ctx, token); err != nil {
		return fmt.Errorf("remove login token: %w", err)
	}
	return nil
}

// TokenActive reports whether token is still recorded as logged in.
func (s *AccountService) TokenActive(ctx context.Context, token string) bool {
	return s.deps.Tokens.Exists(ctx, token)
}

// Me returns the caller's account.
func (s *AccountService) Me(ctx context.Context, caller Caller) (*models.User, error) {
	if caller.Anonymous() {
		return nil, newError(ErrUnauthenticated, "login required")
	}
	return s.GetUser(ctx, caller.UserID)
}

// GetUser returns a user by id.
func (s *AccountService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// ProfileInput carries optional profile updates; nil fields are left unchanged.
type ProfileInput struct {
	Email        *string
	Introduction *string
	Area         *string
	Birth        *time.Time
}

// UpdateProfile edits the caller's profile.
func (s *AccountService) UpdateProfile(ctx context.Context, caller Caller, in ProfileInput) (*models.User, error) {
	user, err := s.Me(ctx, caller)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" && !strings.Contains(email, "@") {
			return nil, newError(ErrInvalidRequest, "invalid email")
		}
		updates["email"] = email
	}
	if in.Introduction != nil {
		intro := utils.Sanitize(strings.TrimSpace(*in.Introduction))
		if r := []rune(intro); len(r) > 512 {
			intro = string(r[:512])
		}
		updates["introduction"] = intro
	}
	if in.Area != nil {
		updates["area"] = utils.Sanitize(strings.TrimSpace(*in.Area))
	}
	if in.Birth != nil {
		if in.Birth.After(time.Now()) {
			return nil, newError(ErrInvalidRequest, "birth date cannot be in the future")
		}
		updates["birth"] = *in.Birth
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}
	return s.GetUser(ctx, user.ID)
}

// UpdateAvatar replaces the caller's avatar image.
func (s *AccountService) UpdateAvatar(ctx context.Context, caller Caller, file Upload) (*models.User, error) {
	user, err := s.Me(ctx, caller)
	if err != nil {
		return nil, err
	}
	if s.deps.Store == nil {
		return nil, newError(ErrInvalidRequest, "uploads are not supported")
	}
	if !strings.HasPrefix(file.ContentType, "image/") {
		return nil, newError(ErrInvalidRequest, "avatar must be an image")
	}
	url, err := s.deps.Store.Upload(ctx, FolderAvatars, file)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	old := user.AvatarURL
	if err := s.db.WithContext(ctx).Model(user).Update("avatar_url", url).Error; err != nil {
		deleteObjects(ctx, s.deps.Store, s.log, url)
		return nil, fmt.Errorf("update avatar: %w", err)
	}
	deleteObjects(ctx, s.deps.Store, s.log, old)
	user.AvatarURL = url
	return user, nil
}

func validUsername(s string) bool {
	for _, r := range s {
		if r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if r >= 0x4E00 && r <= 0x9FFF {
			continue
		}
		return false
	}
	return true
}

func validPassword(s string) bool {
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-' || r == '_' || r == '.' {
			continue
		}
		return false
	}
	return true
}
