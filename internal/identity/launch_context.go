package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"flower-storefront/internal/models"
)

var (
	// ErrNoLaunchContext means the Mini-App was opened outside Telegram or without a user
	ErrNoLaunchContext = errors.New("no launch context")
	// ErrInvalidSignature means the init data hash does not match the bot token
	ErrInvalidSignature = errors.New("invalid launch context signature")
	// ErrLaunchContextExpired means auth_date is older than the allowed age
	ErrLaunchContextExpired = errors.New("launch context expired")
)

// LaunchContext is the parsed Telegram WebApp init data
type LaunchContext struct {
	User       *models.TelegramUser
	AuthDate   time.Time
	QueryID    string
	StartParam string
	Hash       string
}

// ParseLaunchContext parses the raw initData query string
func ParseLaunchContext(initData string) (*LaunchContext, error) {
	initData = strings.TrimSpace(initData)
	if initData == "" {
		return nil, ErrNoLaunchContext
	}

	data, err := initdata.Parse(initData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse init data: %w", err)
	}
	if data.User.ID == 0 {
		return nil, ErrNoLaunchContext
	}

	lc := &LaunchContext{
		User: &models.TelegramUser{
			ID:           data.User.ID,
			Username:     data.User.Username,
			FirstName:    data.User.FirstName,
			LastName:     data.User.LastName,
			LanguageCode: data.User.LanguageCode,
		},
		QueryID:    data.QueryID,
		StartParam: data.StartParam,
		Hash:       data.Hash,
	}
	if data.AuthDateRaw > 0 {
		lc.AuthDate = data.AuthDate()
	}
	return lc, nil
}
