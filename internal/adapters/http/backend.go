package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
)

// Backend binds the reward backend endpoints to domain types. Every error it
// returns is a *model.NetworkError or *model.SessionStartError.
type Backend struct {
	api *APIClient
}

func NewBackend(api *APIClient) *Backend {
	return &Backend{api: api}
}

type identityParams struct {
	TelegramID int64  `url:"telegram_id" json:"telegram_id"`
	DeviceID   string `url:"device_id" json:"device_id"`
}

func paramsFor(identity model.Identity) identityParams {
	return identityParams{TelegramID: identity.PlatformUserID, DeviceID: identity.DeviceID}
}

type profilePayload struct {
	Username   string          `json:"username"`
	Balance    decimal.Decimal `json:"balance"`
	AdsWatched int             `json:"ads_watched"`
	DailyAds   int             `json:"daily_ads"`
	DailyLimit int             `json:"daily_limit"`
	Referrals  int             `json:"referrals"`
}

type taskPayload struct {
	ID               int             `json:"id"`
	Title            string          `json:"title"`
	Reward           decimal.Decimal `json:"reward"`
	Cooldown         int             `json:"cooldown"`
	RemainingSeconds int             `json:"remaining_seconds"`
	ActiveSessionID  *string         `json:"active_session_id"`
	Tier             string          `json:"tier"`
	Kind             string          `json:"kind"`
}

type providerPayload struct {
	Name       string `json:"name"`
	Enabled    *bool  `json:"enabled"`
	SDKSrc     string `json:"sdk_src"`
	ZoneID     string `json:"zone_id"`
	ShowFn     string `json:"show_fn"`
	YMID       string `json:"ymid"`
	RequestVar string `json:"request_var"`
}

type sessionPayload struct {
	SessionID     string           `json:"session_id"`
	AdURL         string           `json:"ad_url"`
	Status        string           `json:"status"`
	Credited      bool             `json:"credited"`
	ExpiresAt     string           `json:"expires_at"`
	Task          *taskPayload     `json:"task"`
	Provider      *providerPayload `json:"provider"`
	AllowSimulate bool             `json:"allow_simulate"`
	AdUnitKind    string           `json:"ad_unit_kind"`
}

type statusPayload struct {
	Status     string           `json:"status"`
	Credited   bool             `json:"credited"`
	Balance    *decimal.Decimal `json:"balance"`
	AdsWatched int              `json:"ads_watched"`
	DailyAds   int              `json:"daily_ads"`
	DailyLimit int              `json:"daily_limit"`
}

type accountCheckPayload struct {
	MultipleAccounts bool `json:"multiple_accounts"`
	AccountCount     int  `json:"account_count"`
}

type withdrawRequest struct {
	Method  string      `json:"method"`
	Account string      `json:"account"`
	Amount  json.Number `json:"amount"`
}

type withdrawPayload struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message"`
	Balance decimal.Decimal `json:"balance"`
}

func (b *Backend) Profile(ctx context.Context, identity model.Identity) (model.Profile, error) {
	raw, err := b.api.Fetch(ctx, "/api/me", &FetchOptions{Query: paramsFor(identity)})
	if err != nil {
		return model.Profile{}, networkError("profile", err)
	}
	var resp profilePayload
	if err := b.decode("profile", raw, &resp); err != nil {
		return model.Profile{}, err
	}
	return model.Profile{
		Username:   resp.Username,
		Balance:    resp.Balance,
		AdsWatched: resp.AdsWatched,
		DailyAds:   resp.DailyAds,
		DailyLimit: resp.DailyLimit,
		Referrals:  resp.Referrals,
	}, nil
}

func (b *Backend) Tasks(ctx context.Context, identity model.Identity) ([]model.Task, error) {
	raw, err := b.api.Fetch(ctx, "/api/tasks", &FetchOptions{Query: paramsFor(identity)})
	if err != nil {
		return nil, networkError("tasks", err)
	}
	var resp []taskPayload
	if err := b.decode("tasks", raw, &resp); err != nil {
		return nil, err
	}
	tasks := make([]model.Task, 0, len(resp))
	for _, t := range resp {
		tasks = append(tasks, t.toModel())
	}
	return tasks, nil
}

func (b *Backend) StartTask(ctx context.Context, identity model.Identity, taskID int) (model.AdSession, error) {
	raw, err := b.api.Fetch(ctx, fmt.Sprintf("/api/tasks/%d/start", taskID), &FetchOptions{
		Method: http.MethodPost,
		Body:   paramsFor(identity),
	})
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return model.AdSession{}, &model.SessionStartError{TaskID: taskID, Detail: httpErr.Detail(), Err: err}
		}
		return model.AdSession{}, networkError("start", err)
	}
	var resp sessionPayload
	if err := b.decode("start", raw, &resp); err != nil {
		return model.AdSession{}, err
	}
	if strings.TrimSpace(resp.SessionID) == "" {
		return model.AdSession{}, &model.SessionStartError{TaskID: taskID, Err: errors.New("received empty session id")}
	}
	if resp.Provider == nil {
		// Older backends only hand out the session id; the detail endpoint
		// carries the provider block.
		session, err := b.Session(ctx, resp.SessionID)
		if err != nil {
			return model.AdSession{}, err
		}
		if session.AdURL == "" {
			session.AdURL = resp.AdURL
		}
		return session, nil
	}
	session := resp.toModel()
	if session.Task.ID == 0 {
		session.Task.ID = taskID
	}
	return session, nil
}

func (b *Backend) Session(ctx context.Context, sessionID string) (model.AdSession, error) {
	raw, err := b.api.Fetch(ctx, "/api/ad/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return model.AdSession{}, networkError("session", err)
	}
	var resp sessionPayload
	if err := b.decode("session", raw, &resp); err != nil {
		return model.AdSession{}, err
	}
	if resp.SessionID == "" {
		resp.SessionID = sessionID
	}
	return resp.toModel(), nil
}

func (b *Backend) ClientDone(ctx context.Context, sessionID string) error {
	_, err := b.api.Fetch(ctx, "/api/ad/sessions/"+url.PathEscape(sessionID)+"/client-done", &FetchOptions{Method: http.MethodPost})
	if err != nil {
		return networkError("client-done", err)
	}
	return nil
}

func (b *Backend) SimulateValued(ctx context.Context, sessionID string) error {
	_, err := b.api.Fetch(ctx, "/api/ad/sessions/"+url.PathEscape(sessionID)+"/simulate-valued", &FetchOptions{Method: http.MethodPost})
	if err != nil {
		return networkError("simulate", err)
	}
	return nil
}

func (b *Backend) SessionStatus(ctx context.Context, sessionID string) (model.SessionStatus, error) {
	raw, err := b.api.Fetch(ctx, "/api/ad/sessions/"+url.PathEscape(sessionID)+"/status", nil)
	if err != nil {
		return model.SessionStatus{}, networkError("status", err)
	}
	var resp statusPayload
	if err := b.decode("status", raw, &resp); err != nil {
		return model.SessionStatus{}, err
	}
	status := model.SessionStatus{
		Status:     resp.Status,
		Credited:   resp.Credited,
		AdsWatched: resp.AdsWatched,
		DailyAds:   resp.DailyAds,
		DailyLimit: resp.DailyLimit,
	}
	if resp.Balance != nil {
		status.Balance = *resp.Balance
		status.HasBalance = true
	}
	return status, nil
}

func (b *Backend) CheckAccount(ctx context.Context, identity model.Identity) (bool, error) {
	raw, err := b.api.Fetch(ctx, "/api/account/check", &FetchOptions{
		Method: http.MethodPost,
		Body:   paramsFor(identity),
	})
	if err != nil {
		return false, networkError("account-check", err)
	}
	var resp accountCheckPayload
	if err := b.decode("account-check", raw, &resp); err != nil {
		return false, err
	}
	return resp.MultipleAccounts, nil
}

func (b *Backend) Withdraw(ctx context.Context, req model.Withdrawal) (model.WithdrawResult, error) {
	raw, err := b.api.Fetch(ctx, "/api/withdraw", &FetchOptions{
		Method: http.MethodPost,
		Body:   withdrawRequest{Method: req.Method, Account: req.Account, Amount: json.Number(req.Amount.String())},
	})
	if err != nil {
		return model.WithdrawResult{}, networkError("withdraw", err)
	}
	var resp withdrawPayload
	if err := b.decode("withdraw", raw, &resp); err != nil {
		return model.WithdrawResult{}, err
	}
	return model.WithdrawResult{OK: resp.OK, Message: resp.Message, Balance: resp.Balance}, nil
}

// FetchScript satisfies provider.ScriptFetcher.
func (b *Backend) FetchScript(ctx context.Context, scriptURL string) ([]byte, error) {
	return b.api.FetchScript(ctx, scriptURL)
}

func (b *Backend) decode(op string, raw interface{}, out interface{}) error {
	if err := decodeInto(raw, out); err != nil {
		b.api.Log.LogObject(fmt.Sprintf("Unexpected %s response", op), raw)
		return networkError(op, fmt.Errorf("failed to decode %s response: %w", op, err))
	}
	return nil
}

func networkError(op string, err error) error {
	ne := &model.NetworkError{Op: op, Err: err}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		ne.Detail = httpErr.Detail()
	}
	return ne
}

func (t taskPayload) toModel() model.Task {
	task := model.Task{
		ID:               t.ID,
		Title:            t.Title,
		Reward:           t.Reward,
		Tier:             model.TierMicro,
		Kind:             model.KindWeb,
		CooldownSeconds:  t.Cooldown,
		RemainingSeconds: t.RemainingSeconds,
	}
	if task.RemainingSeconds < 0 {
		task.RemainingSeconds = 0
	}
	if t.ActiveSessionID != nil {
		task.ActiveSessionID = strings.TrimSpace(*t.ActiveSessionID)
	}
	if strings.EqualFold(t.Tier, string(model.TierMacro)) {
		task.Tier = model.TierMacro
	}
	switch {
	case strings.EqualFold(t.Kind, string(model.KindVideo)):
		task.Kind = model.KindVideo
	case t.Kind == "" && strings.Contains(strings.ToLower(t.Title), "video"):
		task.Kind = model.KindVideo
	}
	return task
}

func (s sessionPayload) toModel() model.AdSession {
	session := model.AdSession{
		SessionID:     s.SessionID,
		Status:        s.Status,
		AllowSimulate: s.AllowSimulate,
		Credited:      s.Credited,
		AdURL:         s.AdURL,
		Provider:      model.UnconfiguredProvider{},
	}
	if s.Task != nil {
		session.Task = s.Task.toModel()
	}
	if strings.EqualFold(s.AdUnitKind, string(model.KindVideo)) {
		session.Task.Kind = model.KindVideo
	}
	if s.Provider != nil {
		enabled := s.Provider.Enabled == nil || *s.Provider.Enabled
		session.Provider = model.NewProviderConfig(s.Provider.Name, enabled, s.Provider.SDKSrc, s.Provider.ShowFn, s.Provider.ZoneID, s.Provider.YMID, s.Provider.RequestVar)
	}
	if ts, err := time.Parse(time.RFC3339Nano, s.ExpiresAt); err == nil {
		session.ExpiresAt = ts
	}
	return session
}
