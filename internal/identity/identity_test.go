package identity

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"flower-storefront/internal/models"
)

const testBotToken = "7000000000:AAE-test-token"

// signedInitData builds init data the way Telegram does for the given fields
func signedInitData(t *testing.T, botToken string, fields map[string]string) string {
	t.Helper()
	seconds, err := strconv.ParseInt(fields["auth_date"], 10, 64)
	require.NoError(t, err)

	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}
	values.Set("hash", initdata.Sign(fields, botToken, time.Unix(seconds, 0)))
	return values.Encode()
}

func hostFields(authDate time.Time) map[string]string {
	return map[string]string{
		"query_id":  "AAHdF6IQAAAAAN0XohDhrOrc",
		"user":      `{"id":279058397,"first_name":"Анна","last_name":"Петрова","username":"anna_flowers","language_code":"ru"}`,
		"auth_date": strconv.FormatInt(authDate.Unix(), 10),
	}
}

func TestParseLaunchContext(t *testing.T) {
	initData := url.Values{
		"user":      {`{"id":42,"username":"rose","first_name":"Rose"}`},
		"auth_date": {"1700000000"},
		"hash":      {"abc"},
	}.Encode()

	lc, err := ParseLaunchContext(initData)

	require.NoError(t, err)
	assert.Equal(t, int64(42), lc.User.ID)
	assert.Equal(t, "rose", lc.User.Username)
	assert.Equal(t, time.Unix(1700000000, 0), lc.AuthDate)
	assert.Equal(t, "abc", lc.Hash)
}

func TestParseLaunchContext_Absent(t *testing.T) {
	testCases := []struct {
		name     string
		initData string
	}{
		{name: "empty", initData: ""},
		{name: "blank", initData: "   "},
		{name: "no user", initData: "auth_date=1700000000&hash=abc"},
		{name: "user without id", initData: url.Values{"user": {`{"username":"x"}`}}.Encode()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLaunchContext(tc.initData)
			assert.ErrorIs(t, err, ErrNoLaunchContext)
		})
	}
}

func TestParseLaunchContext_Malformed(t *testing.T) {
	_, err := ParseLaunchContext(url.Values{"user": {"{not json"}}.Encode())

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoLaunchContext))
}

func TestValidator_AcceptsSignedPayload(t *testing.T) {
	now := time.Now()
	v := NewValidator(testBotToken, time.Hour)

	lc, err := v.Validate(signedInitData(t, testBotToken, hostFields(now.Add(-time.Minute))))

	require.NoError(t, err)
	assert.Equal(t, int64(279058397), lc.User.ID)
	assert.Equal(t, "Анна", lc.User.FirstName)
}

func TestValidator_RejectsTamperedPayload(t *testing.T) {
	now := time.Now()
	v := NewValidator(testBotToken, time.Hour)
	signed := signedInitData(t, testBotToken, hostFields(now))

	values, err := url.ParseQuery(signed)
	require.NoError(t, err)
	values.Set("user", `{"id":1,"first_name":"Mallory"}`)

	_, err = v.Validate(values.Encode())

	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidator_RejectsOtherBot(t *testing.T) {
	v := NewValidator(testBotToken, 0)

	_, err := v.Validate(signedInitData(t, "another-token", hostFields(time.Now())))

	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidator_RejectsStalePayload(t *testing.T) {
	now := time.Now()
	v := NewValidator(testBotToken, time.Hour)

	_, err := v.Validate(signedInitData(t, testBotToken, hostFields(now.Add(-2*time.Hour))))

	assert.ErrorIs(t, err, ErrLaunchContextExpired)
}

func TestValidator_RejectsMissingHash(t *testing.T) {
	v := NewValidator(testBotToken, 0)
	values := url.Values{}
	for key, value := range hostFields(time.Now()) {
		values.Set(key, value)
	}

	_, err := v.Validate(values.Encode())

	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidator_WithoutTokenOnlyParses(t *testing.T) {
	v := NewValidator("", time.Hour)

	lc, err := v.Validate(url.Values{"user": {`{"id":7}`}, "hash": {"whatever"}}.Encode())

	require.NoError(t, err)
	assert.Equal(t, int64(7), lc.User.ID)
}

type fakeExchanger struct {
	mu       sync.Mutex
	requests []models.TelegramAuthRequest
	err      error
}

func (f *fakeExchanger) ExchangeTelegramIdentity(ctx context.Context, req models.TelegramAuthRequest) (*models.TelegramAuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &models.TelegramAuthResponse{
		User:  models.UserIdentity{ID: "user-" + strconv.FormatInt(req.TelegramID, 10), TelegramID: req.TelegramID, Username: req.Username},
		IsNew: len(f.requests) == 1,
	}, nil
}

func TestResolver_HostDescriptor(t *testing.T) {
	// Arrange
	exchanger := &fakeExchanger{}
	resolver := NewResolver(exchanger, NewValidator(testBotToken, time.Hour), ResolverOptions{AnonymousFallback: true})
	initData := signedInitData(t, testBotToken, hostFields(time.Now()))

	// Act
	result := resolver.Resolve(context.Background(), initData)

	// Assert
	require.True(t, result.Resolved())
	assert.Equal(t, SourceHost, result.Source)
	assert.Equal(t, "user-279058397", result.Identity.ID)
	assert.True(t, result.IsNew)
	require.Len(t, exchanger.requests, 1)
	assert.Equal(t, "anna_flowers", exchanger.requests[0].Username)
	assert.Equal(t, StateResolved, resolver.State())
}

func TestResolver_NoLaunchContextFallsBackToAnonymous(t *testing.T) {
	exchanger := &fakeExchanger{}
	resolver := NewResolver(exchanger, NewValidator("", 0), ResolverOptions{AnonymousFallback: true})

	result := resolver.Resolve(context.Background(), "")

	require.True(t, result.Resolved())
	require.NotNil(t, result.Identity)
	assert.Equal(t, SourceAnonymous, result.Source)
	assert.Equal(t, int64(123456789), result.Identity.TelegramID)
	assert.Equal(t, models.TelegramAuthRequest{
		TelegramID: 123456789,
		Username:   "test_user",
		FirstName:  "Test",
		LastName:   "User",
	}, exchanger.requests[0])
}

func TestResolver_InvalidSignatureTreatedAsAbsent(t *testing.T) {
	exchanger := &fakeExchanger{}
	resolver := NewResolver(exchanger, NewValidator(testBotToken, 0), ResolverOptions{AnonymousFallback: true, AnonymousTelegramID: 555})

	result := resolver.Resolve(context.Background(), signedInitData(t, "wrong-token", hostFields(time.Now())))

	require.True(t, result.Resolved())
	assert.Equal(t, SourceAnonymous, result.Source)
	assert.Equal(t, int64(555), exchanger.requests[0].TelegramID)
}

func TestResolver_FallbackDisabled(t *testing.T) {
	exchanger := &fakeExchanger{}
	resolver := NewResolver(exchanger, nil, ResolverOptions{AnonymousFallback: false})

	result := resolver.Resolve(context.Background(), "")

	assert.False(t, result.Resolved())
	assert.Equal(t, StateUnresolved, result.State)
	assert.Nil(t, result.Identity)
	assert.Empty(t, exchanger.requests)
}

func TestResolver_ExchangeFailureLeavesIdentityNull(t *testing.T) {
	exchanger := &fakeExchanger{err: errors.New("backend unreachable")}
	resolver := NewResolver(exchanger, nil, ResolverOptions{AnonymousFallback: true})

	result := resolver.Resolve(context.Background(), "")

	assert.Equal(t, StateUnresolved, result.State)
	assert.Nil(t, result.Identity)
	assert.Error(t, result.Err)
}

func TestResolver_SingleAttempt(t *testing.T) {
	exchanger := &fakeExchanger{err: errors.New("backend unreachable")}
	resolver := NewResolver(exchanger, nil, ResolverOptions{AnonymousFallback: true})
	ctx := context.Background()

	first := resolver.Resolve(ctx, "")
	exchanger.err = nil
	second := resolver.Resolve(ctx, "")

	assert.Equal(t, first, second)
	assert.Equal(t, StateUnresolved, second.State)
	assert.Len(t, exchanger.requests, 1)
}

func TestResolver_StartsUninitialized(t *testing.T) {
	resolver := NewResolver(&fakeExchanger{}, nil, ResolverOptions{})

	assert.Equal(t, StateUninitialized, resolver.State())
	assert.Equal(t, "uninitialized", resolver.State().String())
}
