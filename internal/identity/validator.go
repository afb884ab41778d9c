package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
)

// Validator checks that init data was signed by the configured bot.
// Without a bot token it only parses.
type Validator struct {
	botToken string
	maxAge   time.Duration
}

// NewValidator creates a validator; maxAge <= 0 disables the age check
func NewValidator(botToken string, maxAge time.Duration) *Validator {
	return &Validator{botToken: botToken, maxAge: maxAge}
}

// Validate parses initData and, when a bot token is set, verifies its signature and age
func (v *Validator) Validate(initData string) (*LaunchContext, error) {
	lc, err := ParseLaunchContext(initData)
	if err != nil {
		return nil, err
	}
	if v == nil || v.botToken == "" {
		return lc, nil
	}

	maxAge := max(v.maxAge, 0)
	if err := initdata.Validate(strings.TrimSpace(initData), v.botToken, maxAge); err != nil {
		switch {
		case errors.Is(err, initdata.ErrSignMissing), errors.Is(err, initdata.ErrSignInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, initdata.ErrExpired), errors.Is(err, initdata.ErrAuthDateMissing):
			slog.Debug("Launch context too old", "auth_date", lc.AuthDate, "max_age", v.maxAge.String())
			return nil, ErrLaunchContextExpired
		default:
			return nil, fmt.Errorf("failed to validate init data: %w", err)
		}
	}
	return lc, nil
}
