package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidalarr/tidalarr/internal/config"
	"github.com/tidalarr/tidalarr/internal/constants"
	"github.com/tidalarr/tidalarr/internal/httpclient"
	"github.com/tidalarr/tidalarr/internal/logger"
)

var (
	ErrAuthorizationDenied  = errors.New("device authorization denied")
	ErrAuthorizationExpired = errors.New("device authorization expired")
	ErrRefreshRejected      = errors.New("refresh token rejected")
)

// DeviceAuthorization is the ephemeral grant returned at the start of a device
// authorization flow. It is discarded once a credential is obtained.
type DeviceAuthorization struct {
	DeviceCode              string `json:"deviceCode"`
	UserCode                string `json:"userCode"`
	VerificationURI         string `json:"verificationUri"`
	VerificationURIComplete string `json:"verificationUriComplete"`
	ExpiresIn               int    `json:"expiresIn"`
	Interval                int    `json:"interval"`
}

// Session guarantees callers an authenticated, non-expired credential. The
// first caller to hit an expired credential performs the refresh (or device
// authorization) while holding the mutex; concurrent callers block on the same
// in-flight operation and observe its published result.
type Session struct {
	cfg    *config.Config
	store  *Store
	client *httpclient.Client
	log    *logger.Logger

	mu   sync.Mutex
	cred *Credential

	expiryMargin time.Duration
	pollInterval time.Duration
	authTimeout  time.Duration
}

// NewSession creates a session manager persisting credentials through store.
func NewSession(cfg *config.Config, store *Store, client *httpclient.Client, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Default()
	}
	return &Session{
		cfg:          cfg,
		store:        store,
		client:       client,
		log:          log.WithComponent("auth"),
		expiryMargin: constants.TokenExpiryMargin,
		pollInterval: constants.DevicePollInterval,
		authTimeout:  constants.DeviceAuthTimeout,
	}
}

// EnsureAuthenticated returns a credential valid beyond the expiry safety
// margin, refreshing or re-authorizing as needed.
func (s *Session) EnsureAuthenticated(ctx context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ctx)
}

// Refresh exchanges the refresh token for a new access token. Fails with
// ErrRefreshRejected when the provider has invalidated the refresh token.
func (s *Session) Refresh(ctx context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

// DeviceAuthorize runs the full device authorization flow: request a grant,
// surface the verification URL, then poll until approval, denial, or expiry.
func (s *Session) DeviceAuthorize(ctx context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceAuthorizeLocked(ctx)
}

// Invalidate discards the in-memory credential so the next caller
// re-authenticates. Used when the provider rejects a supposedly valid token.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
}

// CountryCode returns the country code of the authenticated user, falling
// back to the configured default before first login.
func (s *Session) CountryCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred != nil && s.cred.CountryCode != "" {
		return s.cred.CountryCode
	}
	return s.cfg.CountryCode
}

func (s *Session) ensureLocked(ctx context.Context) (*Credential, error) {
	if s.cred == nil {
		cred, err := s.store.Load()
		if err != nil {
			s.log.Warn("Failed to load persisted token", "error", err)
		} else if cred != nil {
			s.log.Info("Loaded token from store", "path", s.cfg.TokenPath)
			s.cred = cred
		}
	}

	if s.cred.ValidFor(s.expiryMargin) {
		return s.cred, nil
	}

	if s.cred != nil && s.cred.RefreshToken != "" {
		cred, err := s.refreshLocked(ctx)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, ErrRefreshRejected) {
			return nil, err
		}
		s.log.Warn("Refresh token rejected, falling back to device authorization")
	}

	return s.deviceAuthorizeLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) (*Credential, error) {
	if s.cred == nil || s.cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token available", ErrRefreshRejected)
	}

	form := url.Values{
		"client_id":     {s.cfg.ClientID},
		"scope":         {constants.AuthScope},
		"refresh_token": {s.cred.RefreshToken},
		"grant_type":    {constants.RefreshGrantType},
	}

	body, status, err := s.postForm(ctx, s.cfg.AuthURL+"/token", form)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	if status >= 400 && status < 500 {
		return nil, fmt.Errorf("%w: %s", ErrRefreshRejected, errorDescription(body))
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("refresh failed with status %d", status)
	}

	cred, err := s.credentialFromResponse(body)
	if err != nil {
		return nil, err
	}
	// The refresh response may omit the refresh token; keep the old one.
	if cred.RefreshToken == "" {
		cred.RefreshToken = s.cred.RefreshToken
	}

	s.publish(cred)
	s.log.Info("Refreshed access token", "expires_at", cred.Expiry)
	return cred, nil
}

func (s *Session) deviceAuthorizeLocked(ctx context.Context) (*Credential, error) {
	grant, err := s.requestDeviceAuthorization(ctx)
	if err != nil {
		return nil, err
	}

	s.log.Info("Please approve this device",
		"url", "https://"+grant.VerificationURIComplete,
		"user_code", grant.UserCode)

	interval := s.pollInterval
	if grant.Interval > 0 {
		interval = time.Duration(grant.Interval) * time.Second
	}

	timeout := s.authTimeout
	if grant.ExpiresIn > 0 {
		if grantTimeout := time.Duration(grant.ExpiresIn) * time.Second; grantTimeout < timeout {
			timeout = grantTimeout
		}
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := sleepCtx(ctx, interval); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrAuthorizationExpired
		}

		cred, retry, err := s.pollDeviceToken(ctx, grant)
		if err != nil {
			return nil, err
		}
		if retry {
			continue
		}

		s.publish(cred)
		s.log.Info("Device authorization complete", "user_id", cred.UserID, "country", cred.CountryCode)
		return cred, nil
	}
}

func (s *Session) requestDeviceAuthorization(ctx context.Context) (*DeviceAuthorization, error) {
	form := url.Values{
		"client_id": {s.cfg.ClientID},
		"scope":     {constants.AuthScope},
	}
	body, status, err := s.postForm(ctx, s.cfg.AuthURL+"/device_authorization", form)
	if err != nil {
		return nil, fmt.Errorf("device authorization request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("device authorization failed with status %d: %s", status, errorDescription(body))
	}

	var grant DeviceAuthorization
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, fmt.Errorf("failed to parse device authorization response: %w", err)
	}
	return &grant, nil
}

// pollDeviceToken performs one poll of the token endpoint. retry=true means
// the user has not acted yet and polling should continue.
func (s *Session) pollDeviceToken(ctx context.Context, grant *DeviceAuthorization) (*Credential, bool, error) {
	form := url.Values{
		"client_id":   {s.cfg.ClientID},
		"scope":       {constants.AuthScope},
		"device_code": {grant.DeviceCode},
		"grant_type":  {constants.DeviceCodeGrantType},
	}

	body, status, err := s.postForm(ctx, s.cfg.AuthURL+"/token", form)
	if err != nil {
		// Network hiccups should not abort the whole flow; the deadline
		// bounds how long we keep trying.
		s.log.Warn("Device token poll failed", "error", err)
		return nil, true, nil
	}

	if status == http.StatusOK {
		cred, err := s.credentialFromResponse(body)
		if err != nil {
			return nil, false, err
		}
		return cred, false, nil
	}

	switch errorCode(body) {
	case "authorization_pending", "slow_down":
		return nil, true, nil
	case "expired_token":
		return nil, false, ErrAuthorizationExpired
	case "access_denied":
		return nil, false, ErrAuthorizationDenied
	}
	if status >= 400 && status < 500 {
		return nil, false, fmt.Errorf("%w: %s", ErrAuthorizationDenied, errorDescription(body))
	}
	return nil, true, nil
}

// publish installs the new credential and persists it. Persistence failure is
// a warning only: the in-memory credential stays usable for this process.
func (s *Session) publish(cred *Credential) {
	s.cred = cred
	if err := s.store.Save(cred); err != nil {
		s.log.Warn("Failed to persist token", "error", err)
	} else {
		s.log.Debug("Token saved", "path", s.cfg.TokenPath)
	}
}

func (s *Session) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.cfg.ClientSecret != "" {
		req.SetBasicAuth(s.cfg.ClientID, s.cfg.ClientSecret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// tokenResponse is the provider token payload shared by the device and
// refresh grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		UserID      int64  `json:"userId"`
		CountryCode string `json:"countryCode"`
	} `json:"user"`
}

func (s *Session) credentialFromResponse(body []byte) (*Credential, error) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access token")
	}

	cred := &Credential{
		CountryCode: tr.User.CountryCode,
		UserID:      tr.User.UserID,
	}
	cred.AccessToken = tr.AccessToken
	cred.RefreshToken = tr.RefreshToken
	cred.TokenType = tr.TokenType
	if tr.ExpiresIn > 0 {
		cred.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return cred, nil
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func errorCode(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return ""
	}
	return er.Error
}

func errorDescription(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || (er.Error == "" && er.ErrorDescription == "") {
		return string(body)
	}
	if er.ErrorDescription == "" {
		return er.Error
	}
	return er.ErrorDescription
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
