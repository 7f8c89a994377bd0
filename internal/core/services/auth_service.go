package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"physlab/internal/core/domain"
	"physlab/internal/core/ports"
	apperrors "physlab/pkg/errors"
	"physlab/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims is the session token payload.
type Claims struct {
	UserID     domain.UserID `json:"user_id"`
	TelegramID string        `json:"telegram_id"`
	Role       domain.Role   `json:"role"`
	jwt.RegisteredClaims
}

type AuthConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	Issuer           string
	AdminTelegramIDs []string
}

type authService struct {
	users        ports.UserRepository
	achievements ports.AchievementRepository
	tx           ports.Transactor
	verifier     *TelegramVerifier
	jwtSecret    []byte
	tokenTTL     time.Duration
	issuer       string
	admins       map[string]struct{}
	logger       *zap.SugaredLogger
	now          func() time.Time
}

func NewAuthService(
	cfg AuthConfig,
	verifier *TelegramVerifier,
	users ports.UserRepository,
	achievements ports.AchievementRepository,
	tx ports.Transactor,
	logger *zap.SugaredLogger,
) ports.AuthService {
	admins := make(map[string]struct{}, len(cfg.AdminTelegramIDs))
	for _, id := range cfg.AdminTelegramIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = struct{}{}
		}
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &authService{
		users:        users,
		achievements: achievements,
		tx:           tx,
		verifier:     verifier,
		jwtSecret:    []byte(cfg.JWTSecret),
		tokenTTL:     ttl,
		issuer:       cfg.Issuer,
		admins:       admins,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *authService) LoginWithTelegram(ctx context.Context, initData string) (*ports.LoginResult, error) {
	tgUser, err := s.verifier.Verify(initData)
	if err != nil {
		return nil, err
	}
	telegramID := strconv.FormatInt(tgUser.ID, 10)
	_, isAdmin := s.admins[telegramID]

	ctx = context.WithoutCancel(ctx)
	var user *domain.User
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.users.GetByTelegramID(ctx, telegramID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			existing, err = s.register(ctx, telegramID, tgUser, isAdmin)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if isAdmin {
			if err := s.promote(ctx, existing); err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.users.Touch(ctx, existing.ID, now); err != nil {
			return err
		}
		existing.LastActivity = &now
		user = existing
		return nil
	})
	if err != nil {
		return nil, classify(err, "user")
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to issue token", 500)
	}

	s.logger.Infow("user logged in",
		"user_id", user.ID,
		"role", user.Role,
	)
	return &ports.LoginResult{Token: token, User: user}, nil
}

func (s *authService) register(ctx context.Context, telegramID string, tg *TelegramUser, isAdmin bool) (*domain.User, error) {
	name := tg.FirstName
	if name == "" {
		name = "User"
	}
	user := &domain.User{
		TelegramID: telegramID,
		Role:       domain.RoleStudent,
		Name:       name,
		Surname:    tg.LastName,
		PhotoURL:   tg.PhotoURL,
		Level:      domain.LevelBeginner,
		Subjects:   []string{},
	}
	if isAdmin {
		user.Role = domain.RoleAdmin
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Infow("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// promote grants the admin role. The welcome perks are granted once, tracked by the achievement.
func (s *authService) promote(ctx context.Context, user *domain.User) error {
	welcomed, err := s.achievements.Exists(ctx, user.ID, domain.AchievementAdminWelcome)
	if err != nil {
		return err
	}
	if user.Role == domain.RoleAdmin && welcomed {
		return nil
	}

	user.Role = domain.RoleAdmin
	if !welcomed {
		user.Level = domain.LevelAdmin
		user.Streak = domain.AdminStreak
	}
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	if welcomed {
		return nil
	}

	if err := s.users.AddXP(ctx, user.ID, domain.AdminXP-user.XP); err != nil {
		return err
	}
	user.XP = domain.AdminXP

	s.logger.Infow("user promoted to admin", "user_id", user.ID)
	return s.achievements.Create(ctx, &domain.Achievement{
		UserID:      user.ID,
		Type:        domain.AchievementAdminWelcome,
		Title:       "Administrator",
		Description: "Granted administrator access",
		EarnedAt:    s.now(),
	})
}

func (s *authService) IssueToken(user *domain.User) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID:     user.ID,
		TelegramID: user.TelegramID,
		Role:       user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// Authenticate verifies the token and resolves the caller from the store.
// The stored role wins over the role in the claims.
func (s *authService) Authenticate(ctx context.Context, tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, apperrors.NewUnauthenticatedError("token is required")
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, apperrors.NewUnauthenticatedError("token has expired")
		}
		return domain.Identity{}, apperrors.NewUnauthenticatedError("invalid token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, apperrors.NewUnauthenticatedError("user no longer exists")
		}
		return domain.Identity{}, apperrors.NewStoreError(err)
	}
	return user.Identity(), nil
}

func (s *authService) Profile(ctx context.Context, id domain.Identity) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, classify(err, "user")
	}
	return user, nil
}

func (s *authService) UpdateProfile(ctx context.Context, id domain.Identity, p domain.ProfileUpdate) (*domain.User, error) {
	if p.Name != nil {
		if err := validation.ValidateStringLength(*p.Name, 1, 100, "name"); err != nil {
			return nil, err
		}
	}
	if p.Surname != nil {
		if err := validation.ValidateStringLength(*p.Surname, 0, 100, "surname"); err != nil {
			return nil, err
		}
	}
	if p.PhotoURL != nil && *p.PhotoURL != "" {
		if err := validation.ValidateURL(*p.PhotoURL, "photo_url"); err != nil {
			return nil, err
		}
	}

	ctx = context.WithoutCancel(ctx)
	user, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		return nil, classify(err, "user")
	}
	user.Apply(p)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, classify(err, "user")
	}
	return user, nil
}
