package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/mailer"
	"github.com/suPer8Hu/subspace-chat/internal/models"
	"github.com/suPer8Hu/subspace-chat/internal/session"
	"github.com/suPer8Hu/subspace-chat/internal/store/redisstore"
	"gorm.io/gorm"
)

const DefaultCodeTTL = 15 * time.Minute

var errBadCredentials = common.Permission("Invalid email or password")

// CodeStore keeps one-time codes and revoked token ids.
type CodeStore interface {
	SaveCode(ctx context.Context, p redisstore.Purpose, email, code string, ttl time.Duration) error
	GetCode(ctx context.Context, p redisstore.Purpose, email string) (string, error)
	DeleteCode(ctx context.Context, p redisstore.Purpose, email string) error
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type MailQueue interface {
	Enqueue(ctx context.Context, m mailer.Mail) (*mailer.Job, error)
}

// Gateway is the identity service: accounts, tokens, codes and profiles.
type Gateway struct {
	db       *gorm.DB
	codes    CodeStore
	mail     MailQueue
	secret   string
	tokenTTL time.Duration
	CodeTTL  time.Duration
	AppName  string
}

func NewGateway(db *gorm.DB, codes CodeStore, mail MailQueue, secret string, tokenTTL time.Duration) *Gateway {
	return &Gateway{
		db:       db,
		codes:    codes,
		mail:     mail,
		secret:   secret,
		tokenTTL: tokenTTL,
		CodeTTL:  DefaultCodeTTL,
		AppName:  "Subspace Chat",
	}
}

type SignUpInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generate a 11 digit random username
func randomUsername11() (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, 11)
	for i := 0; i < 11; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		out[i] = letters[n.Int64()]
	}
	return string(out), nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (g *Gateway) allocateUsername(ctx context.Context) (string, error) {
	for i := 0; i < 5; i++ {
		u, err := randomUsername11()
		if err != nil {
			return "", err
		}
		var cnt int64
		if err := g.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", u).Count(&cnt).Error; err != nil {
			return "", err
		}
		if cnt == 0 {
			return u, nil
		}
	}
	return "", errors.New("failed to allocate username")
}

// SignUp creates an unverified account and mails a verification code.
func (g *Gateway) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	} else if err := ValidateDisplayName(name); err != nil {
		return nil, err
	}

	var cnt int64
	if err := g.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&cnt).Error; err != nil {
		return nil, err
	}
	if cnt > 0 {
		return nil, common.Conflict("An account with this email already exists")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	username, err := g.allocateUsername(ctx)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        email,
		Username:     username,
		DisplayName:  name,
		PasswordHash: hash,
	}
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&models.Profile{
			UserID:          user.ID,
			DisplayName:     name,
			ThemePreference: models.ThemeAuto,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	// the account stands; ResendVerification issues a new code later
	if err := g.sendCode(ctx, redisstore.PurposeVerify, user.Email); err != nil {
		log.Printf("[Auth] verification mail for user=%d: %v", user.ID, err)
	}
	return &user, nil
}

func (g *Gateway) sendCode(ctx context.Context, p redisstore.Purpose, email string) error {
	code, err := randomCode()
	if err != nil {
		return err
	}
	if err := g.codes.SaveCode(ctx, p, email, code, g.CodeTTL); err != nil {
		return fmt.Errorf("saving code: %w", err)
	}

	subject := g.AppName + " verification code"
	intro := "Use this code to verify your email address:"
	kind := mailer.KindVerify
	if p == redisstore.PurposeReset {
		subject = g.AppName + " password reset"
		intro = "Use this code to reset your password:"
		kind = mailer.KindReset
	}
	body := "Hello,\n\n" + intro + "\n\n    " + code + "\n\n" +
		fmt.Sprintf("The code expires in %d minutes. If you did not request it, you can ignore this mail.\n\n", int(g.CodeTTL.Minutes())) +
		"Best regards,\n" + g.AppName + "\n"

	if _, err := g.mail.Enqueue(ctx, mailer.Mail{Kind: kind, To: email, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("queueing mail: %w", err)
	}
	return nil
}

// checkCode consumes a one-time code.
func (g *Gateway) checkCode(ctx context.Context, p redisstore.Purpose, email, code string) error {
	want, err := g.codes.GetCode(ctx, p, email)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return common.Validation("code", "Code expired or not found")
		}
		return fmt.Errorf("reading code: %w", err)
	}
	if strings.TrimSpace(code) != want {
		return common.Validation("code", "Invalid code")
	}
	// unconsumed codes stay reusable, so a failed delete rejects the attempt
	if err := g.codes.DeleteCode(ctx, p, email); err != nil {
		log.Printf("[Auth] consume %s code: %v", p, err)
		return fmt.Errorf("consuming code: %w", err)
	}
	return nil
}

func (g *Gateway) userByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := g.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyEmail marks the account verified and signs it in.
func (g *Gateway) VerifyEmail(ctx context.Context, email, code string) (*session.Session, error) {
	email = normalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := g.checkCode(ctx, redisstore.PurposeVerify, email, code); err != nil {
		return nil, err
	}
	user, err := g.userByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NotFound("account not found")
		}
		return nil, err
	}
	if err := g.db.WithContext(ctx).Model(user).Update("email_verified", true).Error; err != nil {
		return nil, err
	}
	user.EmailVerified = true

	body := "Hello,\n\n" +
		"Welcome to " + g.AppName + ". Your account is ready.\n\n" +
		"Username: " + user.Username + "\n\n" +
		"If you did not create this account, please contact support.\n\n" +
		"Best regards,\n" + g.AppName + "\n"
	if _, err := g.mail.Enqueue(ctx, mailer.Mail{
		Kind:           mailer.KindWelcome,
		To:             user.Email,
		Subject:        "Welcome to " + g.AppName,
		Body:           body,
		IdempotencyKey: fmt.Sprintf("welcome:%d", user.ID),
	}); err != nil {
		log.Printf("[Auth] welcome mail for user=%d: %v", user.ID, err)
	}

	return g.issue(user)
}

// ResendVerification mails a fresh code to an unverified account.
func (g *Gateway) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	user, err := g.userByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if user.EmailVerified {
		return nil
	}
	return g.sendCode(ctx, redisstore.PurposeVerify, email)
}

func (g *Gateway) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	email = normalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, common.Validation("password", "Password is required")
	}
	user, err := g.userByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, errBadCredentials
	}
	if !user.EmailVerified {
		return nil, common.Permission("Please verify your email before signing in")
	}
	return g.issue(user)
}

func (g *Gateway) issue(user *models.User) (*session.Session, error) {
	token, claims, err := SignJWT(user.ID, g.secret, g.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &session.Session{
		UserID:        user.ID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		EmailVerified: user.EmailVerified,
		AccessToken:   token,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}

// Authenticate parses a bearer token and rejects revoked ones.
func (g *Gateway) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := ParseJWT(token, g.secret)
	if err != nil {
		return nil, common.Permission("invalid or expired token")
	}
	revoked, err := g.codes.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		return nil, common.Permission("token revoked")
	}
	return claims, nil
}

// SignOut revokes the token until its natural expiry.
func (g *Gateway) SignOut(ctx context.Context, claims *Claims) error {
	ttl := time.Until(claims.ExpiresAt.Time)
	return g.codes.Revoke(ctx, claims.ID, ttl)
}

// Refresh swaps a live token for a new one.
func (g *Gateway) Refresh(ctx context.Context, claims *Claims) (*session.Session, error) {
	user, err := g.CurrentUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	sess, err := g.issue(user)
	if err != nil {
		return nil, err
	}
	if err := g.SignOut(ctx, claims); err != nil {
		return nil, err
	}
	return sess, nil
}

// RequestPasswordReset mails a reset code. Unknown emails succeed silently.
func (g *Gateway) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if _, err := g.userByEmail(ctx, email); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return g.sendCode(ctx, redisstore.PurposeReset, email)
}

func (g *Gateway) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	if err := g.checkCode(ctx, redisstore.PurposeReset, email, code); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	res := g.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NotFound("account not found")
	}
	return nil
}

func (g *Gateway) CurrentUser(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	if err := g.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NotFound("user not found")
		}
		return nil, err
	}
	return &user, nil
}

// GetProfile returns the profile, creating the default one on first read.
func (g *Gateway) GetProfile(ctx context.Context, userID uint64) (*models.Profile, error) {
	user, err := g.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := models.Profile{UserID: userID}
	if err := g.db.WithContext(ctx).
		Where(models.Profile{UserID: userID}).
		Attrs(models.Profile{DisplayName: user.DisplayName, ThemePreference: models.ThemeAuto}).
		FirstOrCreate(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

type ProfileInput struct {
	DisplayName     *string       `json:"display_name"`
	Bio             *string       `json:"bio"`
	AvatarURL       *string       `json:"avatar_url"`
	ThemePreference *models.Theme `json:"theme_preference"`
}

func (g *Gateway) UpdateProfile(ctx context.Context, userID uint64, in ProfileInput) (*models.Profile, error) {
	p, err := g.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.DisplayName != nil {
		if err := ValidateDisplayName(*in.DisplayName); err != nil {
			return nil, err
		}
		fields["display_name"] = strings.TrimSpace(*in.DisplayName)
	}
	if in.Bio != nil {
		if len([]rune(*in.Bio)) > 500 {
			return nil, common.Validation("bio", "Bio must be less than 500 characters")
		}
		fields["bio"] = *in.Bio
	}
	if in.AvatarURL != nil {
		fields["avatar_url"] = strings.TrimSpace(*in.AvatarURL)
	}
	if in.ThemePreference != nil {
		switch *in.ThemePreference {
		case models.ThemeLight, models.ThemeDark, models.ThemeAuto:
		default:
			return nil, common.Validation("theme_preference", "Theme must be light, dark or auto")
		}
		fields["theme_preference"] = *in.ThemePreference
	}
	if len(fields) == 0 {
		return p, nil
	}

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Profile{}).Where("user_id = ?", userID).Updates(fields).Error; err != nil {
			return err
		}
		if name, ok := fields["display_name"]; ok {
			return tx.Model(&models.User{}).Where("id = ?", userID).Update("display_name", name).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g.GetProfile(ctx, userID)
}
