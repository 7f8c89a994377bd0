package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "physlab/pkg/errors"
)

// TelegramUser is the user object embedded in Mini App init data.
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
}

// TelegramVerifier checks the HMAC signature Telegram attaches to Mini App init data.
type TelegramVerifier struct {
	botToken string
	maxAge   time.Duration
	now      func() time.Time
}

// NewTelegramVerifier creates a verifier. A non-positive maxAge disables the freshness check.
func NewTelegramVerifier(botToken string, maxAge time.Duration) *TelegramVerifier {
	return &TelegramVerifier{botToken: botToken, maxAge: maxAge, now: time.Now}
}

func (v *TelegramVerifier) Verify(initData string) (*TelegramUser, error) {
	if strings.TrimSpace(initData) == "" {
		return nil, apperrors.NewValidationError("initData", "initData is required")
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, apperrors.NewUnauthenticatedError("malformed telegram init data")
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, apperrors.NewUnauthenticatedError("telegram init data is not signed")
	}
	values.Del("hash")

	expected := signature(v.botToken, values)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hash))) {
		return nil, apperrors.NewUnauthenticatedError("invalid telegram signature")
	}

	if v.maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil || v.now().Sub(time.Unix(authDate, 0)) > v.maxAge {
			return nil, apperrors.NewUnauthenticatedError("telegram init data has expired")
		}
	}

	raw := values.Get("user")
	if raw == "" {
		return nil, apperrors.NewValidationError("user", "telegram user data is missing")
	}
	var user TelegramUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user.ID == 0 {
		return nil, apperrors.NewValidationError("user", "telegram user data is malformed")
	}
	return &user, nil
}

// SignInitData encodes values and appends the hash Telegram would produce for botToken.
func SignInitData(botToken string, values url.Values) string {
	signed := url.Values{}
	for k, v := range values {
		if k != "hash" {
			signed[k] = v
		}
	}
	signed.Set("hash", signature(botToken, signed))
	return signed.Encode()
}

func signature(botToken string, values url.Values) string {
	pairs := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		pairs = append(pairs, k+"="+values.Get(k))
	}
	sort.Strings(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
