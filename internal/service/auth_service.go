package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/weekend-academy-api/internal/models"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

type authTeacherRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Teacher, error)
}

type authStudentRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService authenticates admins, teachers and students and issues access tokens.
type AuthService struct {
	users     authUserRepository
	teachers  authTeacherRepository
	students  authStudentRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, teachers authTeacherRepository, students authStudentRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	return &AuthService{users: users, teachers: teachers, students: students, validator: validate, logger: logger, config: config}
}

type principalAccount struct {
	info         models.UserInfo
	passwordHash string
}

// Login authenticates a principal and returns an access token. Accounts are
// looked up in users, then teachers, then students.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	account, err := s.findAccount(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		s.logger.Info("login failed", zap.String("email", req.Email), zap.String("ip", req.IP))
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.passwordHash), []byte(req.Password)); err != nil {
		s.logger.Info("login failed", zap.String("email", req.Email), zap.String("ip", req.IP))
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	issuedAt := time.Now().UTC()
	token, err := s.generateAccessToken(account.info, issuedAt)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}

	if account.info.Role == models.RoleAdmin {
		if err := s.users.RecordLogin(ctx, account.info.ID, issuedAt); err != nil {
			s.logger.Warn("failed to record admin login", zap.String("user_id", account.info.ID), zap.Error(err))
		}
	}

	s.logger.Info("login succeeded", zap.String("user_id", account.info.ID), zap.String("role", string(account.info.Role)))
	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		User:        account.info,
		IssuedAt:    issuedAt,
	}, nil
}

func (s *AuthService) findAccount(ctx context.Context, email string) (*principalAccount, error) {
	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.Active {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "account is inactive")
		}
		return &principalAccount{
			info:         models.UserInfo{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: models.RoleAdmin},
			passwordHash: user.PasswordHash,
		}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Internal(err, "failed to fetch user")
	}

	teacher, err := s.teachers.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return &principalAccount{
			info: models.UserInfo{
				ID: teacher.ID, Email: teacher.Email, FullName: teacher.FullName, Role: models.RoleTeacher,
				TeacherRole: teacher.TeacherRole, CourseID: teacher.CourseID,
			},
			passwordHash: teacher.PasswordHash,
		}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Internal(err, "failed to fetch teacher")
	}

	student, err := s.students.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return &principalAccount{
			info:         models.UserInfo{ID: student.ID, Email: student.Email, FullName: student.FullName(), Role: models.RoleStudent},
			passwordHash: student.PasswordHash,
		}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Internal(err, "failed to fetch student")
	}
	return nil, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) generateAccessToken(info models.UserInfo, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID:      info.ID,
		Role:        info.Role,
		TeacherRole: info.TeacherRole,
		CourseID:    info.CourseID,
		Email:       info.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   info.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}
