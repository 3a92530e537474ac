package db

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"gorm.io/gorm"
)

// UserByEmail looks a user up by normalized email.
func UserByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserBySessionToken resolves the session cookie value to a user.
func UserBySessionToken(db *gorm.DB, token string) (*User, error) {
	if token == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user User
	if err := db.Where("session_token = ?", token).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// RotateSessionToken issues a fresh opaque session token for the user and
// persists it, invalidating any previous session.
func RotateSessionToken(db *gorm.DB, userID uint) (string, error) {
	token, err := randomToken(32)
	if err != nil {
		return "", err
	}
	if err := db.Model(&User{}).Where("id = ?", userID).Update("session_token", token).Error; err != nil {
		return "", err
	}
	return token, nil
}

// ClearSessionToken logs the user out everywhere.
func ClearSessionToken(db *gorm.DB, userID uint) error {
	return db.Model(&User{}).Where("id = ?", userID).Update("session_token", "").Error
}

// CreatePasswordResetToken mints a single-use token valid for one hour and
// removes any previous unused tokens for the same user.
func CreatePasswordResetToken(db *gorm.DB, userID uint) (*PasswordResetToken, error) {
	token, err := randomToken(32)
	if err != nil {
		return nil, err
	}

	if err := db.Where("user_id = ? AND used = ?", userID, false).Delete(&PasswordResetToken{}).Error; err != nil {
		return nil, err
	}

	reset := &PasswordResetToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := db.Create(reset).Error; err != nil {
		return nil, err
	}
	return reset, nil
}

// RedeemPasswordResetToken validates the token and, if redeemable, marks
// it used and returns its row. Callers update the password themselves.
func RedeemPasswordResetToken(db *gorm.DB, token string) (*PasswordResetToken, error) {
	var reset PasswordResetToken
	if err := db.Where("token = ?", token).Preload("User").First(&reset).Error; err != nil {
		return nil, err
	}
	if reset.Used {
		return nil, ErrTokenUsed
	}
	if time.Now().After(reset.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	if err := db.Model(&reset).Update("used", true).Error; err != nil {
		return nil, err
	}
	// Invalidate any sibling tokens once one succeeds.
	if err := db.Where("user_id = ? AND used = ?", reset.UserID, false).Delete(&PasswordResetToken{}).Error; err != nil {
		return nil, err
	}
	return &reset, nil
}

// DeleteUserCascade removes the user and every row that hangs off them:
// activities, connected account, credentials, reset tokens.
func DeleteUserCascade(db *gorm.DB, userID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&Activity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&StravaAccount{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&StravaConfig{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&User{}, userID).Error
	})
}

func randomToken(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
