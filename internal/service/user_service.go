package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gestoria/internal/config"
	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/websocket"
	"gestoria/pkg/token"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required"`
}

type UpdateUserRequest struct {
	Username string `json:"username" binding:"omitempty,min=3,max=100"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"omitempty,min=8"`
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
}

// LoginRequest accepts a username or an email in Username.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

type UserListQuery struct {
	Search string `form:"search"`
	Role   string `form:"role"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	IsOwner     bool      `json:"is_owner"`
	IsActive    bool      `json:"is_active"`
	LastLoginAt *string   `json:"last_login_at"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"` // seconds
	User         UserResponse `json:"user"`
}

// TokenConfig is what the auth service needs to sign tokens.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenConfigFrom adapts the JWT section of the app config.
func TokenConfigFrom(c config.JWTConfig) TokenConfig {
	return TokenConfig{Secret: []byte(c.Secret), Issuer: c.Issuer, AccessTTL: c.AccessTTL, RefreshTTL: c.RefreshTTL}
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest, actorID string) (*UserResponse, error)
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, q UserListQuery, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id string, req UpdateUserRequest, actorID string) (*UserResponse, error)
	DeleteUser(ctx context.Context, id string, actorID string) error
}

// AuthService issues and rotates tokens.
type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error)
	Logout(ctx context.Context, refreshToken, userID string) error
	Profile(ctx context.Context, userID string) (*UserResponse, error)
	ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error
	// EnsureOwner creates the owner account from config when none exists.
	EnsureOwner(ctx context.Context, owner config.OwnerConfig) (bool, error)
}

type userService struct {
	repo     repository.UserRepository
	roleRepo repository.RoleRepository
	audit    repository.AuditRepository
	notifier Notifier
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, roleRepo repository.RoleRepository, audit repository.AuditRepository, notifier Notifier) UserService {
	return &userService{repo: repo, roleRepo: roleRepo, audit: audit, notifier: notifierOrNop(notifier)}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	resp := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		IsOwner:   user.IsOwner,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
	if user.LastLoginAt != nil {
		s := user.LastLoginAt.Format(time.RFC3339)
		resp.LastLoginAt = &s
	}
	return resp
}

func (s *userService) validateRole(ctx context.Context, role string) error {
	if _, err := s.roleRepo.FindByName(ctx, role); err != nil {
		if repository.IsNotFound(err) {
			return invalidf("unknown role %q", role)
		}
		return fmt.Errorf("failed to fetch role: %w", err)
	}
	return nil
}

func (s *userService) ensureUnique(ctx context.Context, username, email string) error {
	if username != "" {
		if _, err := s.repo.GetByUsername(ctx, username); err == nil {
			return conflictf("username already exists")
		} else if !repository.IsNotFound(err) {
			return fmt.Errorf("failed to check username: %w", err)
		}
	}
	if email != "" {
		if _, err := s.repo.GetByEmail(ctx, email); err == nil {
			return conflictf("email already exists")
		} else if !repository.IsNotFound(err) {
			return fmt.Errorf("failed to check email: %w", err)
		}
	}
	return nil
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest, actorID string) (*UserResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validateRole(ctx, req.Role); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, req.Username, email); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username: req.Username,
		Email:    email,
		Password: string(hashedPassword),
		Role:     req.Role,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	writeAuditLog(ctx, s.audit, actorID, model.ActionCreateUser, user.ID.String(), user.Username, map[string]string{"role": user.Role})
	s.notifier.Notify(websocket.Notification{
		Type:    websocket.NotifyUser,
		Action:  websocket.ActionCreated,
		Title:   "Nuevo usuario",
		Message: fmt.Sprintf("Se ha creado el usuario %s (%s)", user.Username, user.Role),
		Data:    map[string]string{"id": user.ID.String()},
		Role:    model.RoleAdmin,
	})
	return mapToResponse(user), nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	userID, err := parseID(id, "user")
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "user")
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, q UserListQuery, page, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.repo.List(ctx, repository.UserFilter{Search: q.Search, Role: q.Role}, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id string, req UpdateUserRequest, actorID string) (*UserResponse, error) {
	userID, err := parseID(id, "user")
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "user")
	}

	if user.IsOwner && ((req.Role != "" && req.Role != user.Role) || (req.IsActive != nil && !*req.IsActive)) {
		return nil, forbidden("OWNER_PROTECTED", "the owner account cannot be demoted or deactivated")
	}

	if req.Role != "" && req.Role != user.Role {
		if err := s.validateRole(ctx, req.Role); err != nil {
			return nil, err
		}
		user.Role = req.Role
	}
	if req.Username != "" && req.Username != user.Username {
		if err := s.ensureUnique(ctx, req.Username, ""); err != nil {
			return nil, err
		}
		user.Username = req.Username
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" && email != user.Email {
		if err := s.ensureUnique(ctx, "", email); err != nil {
			return nil, err
		}
		user.Email = email
	}
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = string(hashed)
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if req.IsActive != nil && !*req.IsActive {
		_ = s.repo.DeleteRefreshTokensByUser(ctx, user.ID)
	}

	writeAuditLog(ctx, s.audit, actorID, model.ActionUpdateUser, user.ID.String(), user.Username, map[string]interface{}{
		"role":      user.Role,
		"is_active": user.IsActive,
	})
	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, id string, actorID string) error {
	userID, err := parseID(id, "user")
	if err != nil {
		return err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return lookupErr(err, "user")
	}
	if user.IsOwner {
		return forbidden("OWNER_PROTECTED", "the owner account cannot be deleted")
	}
	if actorID == user.ID.String() {
		return invalidf("you cannot delete your own account")
	}

	if err := s.repo.DeleteRefreshTokensByUser(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	writeAuditLog(ctx, s.audit, actorID, model.ActionDeleteUser, user.ID.String(), user.Username, map[string]string{"deleted_id": id})
	return nil
}

// --- Auth ---

type authService struct {
	repo   repository.UserRepository
	audit  repository.AuditRepository
	tokens TokenConfig
	now    func() time.Time
}

func NewAuthService(repo repository.UserRepository, audit repository.AuditRepository, tokens TokenConfig) AuthService {
	return &authService{repo: repo, audit: audit, tokens: tokens, now: time.Now}
}

var errBadCredentials = fmt.Errorf("%w: invalid username or password", ErrUnauthorized)

func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var user *model.User
	var err error
	ident := strings.TrimSpace(req.Username)
	if strings.Contains(ident, "@") {
		user, err = s.repo.GetByEmail(ctx, strings.ToLower(ident))
	} else {
		user, err = s.repo.GetByUsername(ctx, ident)
	}
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errBadCredentials
	}
	if !user.IsActive {
		return nil, forbidden("USER_INACTIVE", "user account is disabled")
	}

	resp, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	_ = s.repo.TouchLastLogin(ctx, user.ID, now)
	user.LastLoginAt = &now
	resp.User = *mapToResponse(user)

	writeAuditLog(ctx, s.audit, user.ID.String(), model.ActionLogin, user.ID.String(), user.Username, nil)
	return resp, nil
}

// issue signs a new access/refresh pair and stores the refresh token.
func (s *authService) issue(ctx context.Context, user *model.User) (*LoginResponse, error) {
	sub := token.Subject{UserID: user.ID.String(), Username: user.Username, Role: user.Role, IsOwner: user.IsOwner}

	access, err := token.Generate(s.tokens.Secret, s.tokens.Issuer, token.KindAccess, sub, s.tokens.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := token.Generate(s.tokens.Secret, s.tokens.Issuer, token.KindRefresh, sub, s.tokens.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	rt := &model.RefreshToken{UserID: user.ID, Token: refresh, ExpiresAt: s.now().Add(s.tokens.RefreshTTL)}
	if err := s.repo.CreateRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.tokens.AccessTTL.Seconds()),
		User:         *mapToResponse(user),
	}, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new pair issued.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token is required", ErrUnauthorized)
	}
	if _, err := token.Parse(s.tokens.Secret, refreshToken, token.KindRefresh); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	stored, err := s.repo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: refresh token revoked", ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to fetch refresh token: %w", err)
	}
	if s.now().After(stored.ExpiresAt) {
		_ = s.repo.DeleteRefreshToken(ctx, refreshToken)
		return nil, fmt.Errorf("%w: refresh token expired", ErrUnauthorized)
	}

	user, err := s.repo.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, lookupErr(err, "user")
	}
	if !user.IsActive {
		return nil, forbidden("USER_INACTIVE", "user account is disabled")
	}

	if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return s.issue(ctx, user)
}

func (s *authService) Logout(ctx context.Context, refreshToken, userID string) error {
	if refreshToken != "" {
		if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
	}
	writeAuditLog(ctx, s.audit, userID, model.ActionLogout, userID, "", nil)
	return nil
}

func (s *authService) Profile(ctx context.Context, userID string) (*UserResponse, error) {
	id, err := parseID(userID, "user")
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "user")
	}
	return mapToResponse(user), nil
}

func (s *authService) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	id, err := parseID(userID, "user")
	if err != nil {
		return err
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return lookupErr(err, "user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return invalidf("current password is incorrect")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hashed)
	if err := s.repo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	// other sessions must log in again
	return s.repo.DeleteRefreshTokensByUser(ctx, user.ID)
}

func (s *authService) EnsureOwner(ctx context.Context, owner config.OwnerConfig) (bool, error) {
	if !owner.Enabled() {
		return false, nil
	}
	if _, err := s.repo.GetOwner(ctx); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("failed to look up owner: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(owner.Password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash owner password: %w", err)
	}
	username := owner.Username
	if username == "" {
		username = "owner"
	}
	user := &model.User{
		Username: username,
		Email:    strings.ToLower(owner.Email),
		Password: string(hashed),
		Role:     model.RoleAdmin,
		IsOwner:  true,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return false, fmt.Errorf("failed to create owner: %w", err)
	}
	return true, nil
}
