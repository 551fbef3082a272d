package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subtrackhq/subtrack/internal/subscription/application/commands"
	"github.com/subtrackhq/subtrack/internal/subscription/application/queries"
	"github.com/subtrackhq/subtrack/internal/subscription/domain"
)

type fakeCreator struct {
	fn func(ctx context.Context, cmd commands.CreateSubscriptionCommand) (*commands.CreateSubscriptionResult, error)
}

func (f *fakeCreator) Handle(ctx context.Context, cmd commands.CreateSubscriptionCommand) (*commands.CreateSubscriptionResult, error) {
	return f.fn(ctx, cmd)
}

type fakeUpdater struct {
	fn        func(ctx context.Context, cmd commands.UpdateSubscriptionCommand) error
	forUserFn func(ctx context.Context, userID uuid.UUID, patch commands.SubscriptionPatch) (uuid.UUID, error)
}

func (f *fakeUpdater) Handle(ctx context.Context, cmd commands.UpdateSubscriptionCommand) error {
	return f.fn(ctx, cmd)
}

func (f *fakeUpdater) UpdateForUser(ctx context.Context, userID uuid.UUID, patch commands.SubscriptionPatch) (uuid.UUID, error) {
	return f.forUserFn(ctx, userID, patch)
}

type fakeCanceler struct {
	fn        func(ctx context.Context, cmd commands.CancelSubscriptionCommand) error
	forUserFn func(ctx context.Context, userID uuid.UUID, reason string) (uuid.UUID, error)
}

func (f *fakeCanceler) Handle(ctx context.Context, cmd commands.CancelSubscriptionCommand) error {
	return f.fn(ctx, cmd)
}

func (f *fakeCanceler) CancelForUser(ctx context.Context, userID uuid.UUID, reason string) (uuid.UUID, error) {
	return f.forUserFn(ctx, userID, reason)
}

type fakeGetter struct {
	fn func(ctx context.Context, query queries.GetSubscriptionQuery) (*queries.SubscriptionDTO, error)
}

func (f *fakeGetter) Handle(ctx context.Context, query queries.GetSubscriptionQuery) (*queries.SubscriptionDTO, error) {
	return f.fn(ctx, query)
}

type fakeCurrentGetter struct {
	fn func(ctx context.Context, query queries.GetCurrentSubscriptionQuery) (*queries.SubscriptionDTO, error)
}

func (f *fakeCurrentGetter) Handle(ctx context.Context, query queries.GetCurrentSubscriptionQuery) (*queries.SubscriptionDTO, error) {
	return f.fn(ctx, query)
}

// staticVerifier accepts exactly one token and maps it to one user.
type staticVerifier struct {
	token  string
	userID uuid.UUID
}

func (v *staticVerifier) Verify(token string) (uuid.UUID, error) {
	if token != v.token {
		return uuid.Nil, errors.New("unknown token")
	}
	return v.userID, nil
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func sampleDTO(subscriptionID, userID uuid.UUID) *queries.SubscriptionDTO {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 0, 30)
	return &queries.SubscriptionDTO{
		ID:                subscriptionID,
		UserID:            userID,
		PlanID:            uuid.New(),
		Status:            "ACTIVE",
		StartDate:         now,
		EndDate:           end,
		AutoRenew:         true,
		NextBillingDate:   &end,
		CreatedAt:         now,
		UpdatedAt:         now,
		IsCurrentlyActive: true,
		DaysRemaining:     30,
	}
}

func authedRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Authorization", "Bearer good-token")
	return req
}

func newSubscriptionTestServer(t *testing.T, userID uuid.UUID, cfg SubscriptionHandlerConfig) http.Handler {
	t.Helper()

	cfg.Logger = testLogger
	handler := NewSubscriptionHandler(cfg)
	verifier := &staticVerifier{token: "good-token", userID: userID}
	server := NewServer(DefaultServerConfig(), &AuthHandler{logger: testLogger}, &PlanHandler{logger: testLogger}, handler, verifier, testLogger)
	return server.Handler()
}

func TestSubscriptionHandler_Create(t *testing.T) {
	userID := uuid.New()
	planID := uuid.New()
	subscriptionID := uuid.New()

	t.Run("creates a subscription and returns the joined record", func(t *testing.T) {
		creator := &fakeCreator{fn: func(_ context.Context, cmd commands.CreateSubscriptionCommand) (*commands.CreateSubscriptionResult, error) {
			assert.Equal(t, userID, cmd.UserID)
			assert.Equal(t, planID, cmd.PlanID)
			assert.True(t, cmd.AutoRenew)
			return &commands.CreateSubscriptionResult{SubscriptionID: subscriptionID}, nil
		}}
		getter := &fakeGetter{fn: func(_ context.Context, query queries.GetSubscriptionQuery) (*queries.SubscriptionDTO, error) {
			assert.Equal(t, subscriptionID, query.SubscriptionID)
			dto := sampleDTO(query.SubscriptionID, query.UserID)
			dto.Plan = &queries.PlanView{ID: planID, Name: "Professional", PriceCents: 2999, Currency: "USD", DurationDays: 30}
			dto.User = &queries.UserView{ID: query.UserID, Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}
			return dto, nil
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Create: creator, Get: getter})

		req := authedRequest(http.MethodPost, "/api/v1/subscriptions", map[string]any{
			"planId":        planID.String(),
			"autoRenew":     true,
			"paymentMethod": "credit_card",
		})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var dto queries.SubscriptionDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
		assert.Equal(t, subscriptionID, dto.ID)
		assert.Equal(t, "ACTIVE", dto.Status)
		require.NotNil(t, dto.Plan)
		assert.Equal(t, "Professional", dto.Plan.Name)
		require.NotNil(t, dto.User)
		assert.Equal(t, "ada@example.com", dto.User.Email)
	})

	t.Run("rejects a second active subscription", func(t *testing.T) {
		creator := &fakeCreator{fn: func(context.Context, commands.CreateSubscriptionCommand) (*commands.CreateSubscriptionResult, error) {
			return nil, domain.ErrAlreadySubscribed
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Create: creator})

		req := authedRequest(http.MethodPost, "/api/v1/subscriptions", map[string]any{"planId": planID.String()})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("rejects retired plans", func(t *testing.T) {
		creator := &fakeCreator{fn: func(context.Context, commands.CreateSubscriptionCommand) (*commands.CreateSubscriptionResult, error) {
			return nil, commands.ErrPlanInactive
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Create: creator})

		req := authedRequest(http.MethodPost, "/api/v1/subscriptions", map[string]any{"planId": planID.String()})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("requires a plan id", func(t *testing.T) {
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{})

		req := authedRequest(http.MethodPost, "/api/v1/subscriptions", map[string]any{"autoRenew": true})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires a token", func(t *testing.T) {
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", bytes.NewBufferString("{}"))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSubscriptionHandler_Get(t *testing.T) {
	userID := uuid.New()
	subscriptionID := uuid.New()

	t.Run("returns the subscription", func(t *testing.T) {
		getter := &fakeGetter{fn: func(_ context.Context, query queries.GetSubscriptionQuery) (*queries.SubscriptionDTO, error) {
			assert.Equal(t, subscriptionID, query.SubscriptionID)
			assert.Equal(t, userID, query.UserID)
			return sampleDTO(subscriptionID, userID), nil
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Get: getter})

		req := authedRequest(http.MethodGet, "/api/v1/subscriptions/"+subscriptionID.String(), nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var dto queries.SubscriptionDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
		assert.Equal(t, subscriptionID, dto.ID)
		assert.Equal(t, "ACTIVE", dto.Status)
		assert.Equal(t, 30, dto.DaysRemaining)
	})

	t.Run("hides other users' subscriptions", func(t *testing.T) {
		getter := &fakeGetter{fn: func(context.Context, queries.GetSubscriptionQuery) (*queries.SubscriptionDTO, error) {
			return nil, domain.ErrSubscriptionNotFound
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Get: getter})

		req := authedRequest(http.MethodGet, "/api/v1/subscriptions/"+subscriptionID.String(), nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects malformed ids", func(t *testing.T) {
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{})

		req := authedRequest(http.MethodGet, "/api/v1/subscriptions/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSubscriptionHandler_GetCurrent(t *testing.T) {
	userID := uuid.New()
	subscriptionID := uuid.New()

	t.Run("returns the latest subscription", func(t *testing.T) {
		getter := &fakeCurrentGetter{fn: func(_ context.Context, query queries.GetCurrentSubscriptionQuery) (*queries.SubscriptionDTO, error) {
			assert.Equal(t, userID, query.UserID)
			return sampleDTO(subscriptionID, userID), nil
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{GetCurrent: getter})

		req := authedRequest(http.MethodGet, "/api/v1/subscriptions/current", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("reports no history", func(t *testing.T) {
		getter := &fakeCurrentGetter{fn: func(context.Context, queries.GetCurrentSubscriptionQuery) (*queries.SubscriptionDTO, error) {
			return nil, domain.ErrSubscriptionNotFound
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{GetCurrent: getter})

		req := authedRequest(http.MethodGet, "/api/v1/subscriptions/current", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSubscriptionHandler_Update(t *testing.T) {
	userID := uuid.New()
	subscriptionID := uuid.New()

	ownGetter := &fakeGetter{fn: func(_ context.Context, query queries.GetSubscriptionQuery) (*queries.SubscriptionDTO, error) {
		return sampleDTO(query.SubscriptionID, query.UserID), nil
	}}

	t.Run("applies the patch", func(t *testing.T) {
		var got commands.UpdateSubscriptionCommand
		updater := &fakeUpdater{fn: func(_ context.Context, cmd commands.UpdateSubscriptionCommand) error {
			got = cmd
			return nil
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Update: updater, Get: ownGetter})

		req := authedRequest(http.MethodPatch, "/api/v1/subscriptions/"+subscriptionID.String(), map[string]any{
			"autoRenew": false,
		})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got.AutoRenew)
		assert.False(t, *got.AutoRenew)
		assert.Nil(t, got.PlanID)
	})

	t.Run("terminal subscriptions answer not found", func(t *testing.T) {
		updater := &fakeUpdater{fn: func(context.Context, commands.UpdateSubscriptionCommand) error {
			return domain.ErrSubscriptionNotActive
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Update: updater, Get: ownGetter})

		req := authedRequest(http.MethodPatch, "/api/v1/subscriptions/"+subscriptionID.String(), map[string]any{
			"autoRenew": true,
		})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSubscriptionHandler_UpdateCurrent(t *testing.T) {
	userID := uuid.New()
	subscriptionID := uuid.New()

	ownGetter := &fakeGetter{fn: func(_ context.Context, query queries.GetSubscriptionQuery) (*queries.SubscriptionDTO, error) {
		return sampleDTO(query.SubscriptionID, query.UserID), nil
	}}

	t.Run("patches the active subscription", func(t *testing.T) {
		var gotPatch commands.SubscriptionPatch
		updater := &fakeUpdater{forUserFn: func(_ context.Context, gotUser uuid.UUID, patch commands.SubscriptionPatch) (uuid.UUID, error) {
			assert.Equal(t, userID, gotUser)
			gotPatch = patch
			return subscriptionID, nil
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Update: updater, Get: ownGetter})

		req := authedRequest(http.MethodPatch, "/api/v1/subscriptions/current", map[string]any{
			"autoRenew": false,
		})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotPatch.AutoRenew)
		assert.False(t, *gotPatch.AutoRenew)
		var dto queries.SubscriptionDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
		assert.Equal(t, subscriptionID, dto.ID)
	})

	t.Run("nothing active to update", func(t *testing.T) {
		updater := &fakeUpdater{forUserFn: func(context.Context, uuid.UUID, commands.SubscriptionPatch) (uuid.UUID, error) {
			return uuid.Nil, domain.ErrNoActiveSubscription
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Update: updater})

		req := authedRequest(http.MethodPatch, "/api/v1/subscriptions/current", map[string]any{
			"autoRenew": true,
		})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSubscriptionHandler_Cancel(t *testing.T) {
	userID := uuid.New()
	subscriptionID := uuid.New()

	ownGetter := &fakeGetter{fn: func(_ context.Context, query queries.GetSubscriptionQuery) (*queries.SubscriptionDTO, error) {
		return sampleDTO(query.SubscriptionID, query.UserID), nil
	}}

	t.Run("cancels with a reason", func(t *testing.T) {
		var gotReason string
		canceler := &fakeCanceler{fn: func(_ context.Context, cmd commands.CancelSubscriptionCommand) error {
			assert.Equal(t, subscriptionID, cmd.SubscriptionID)
			gotReason = cmd.Reason
			return nil
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Cancel: canceler, Get: ownGetter})

		req := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+subscriptionID.String()+"/cancel", map[string]any{
			"reason": "too expensive",
		})
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "too expensive", gotReason)
	})

	t.Run("double cancel answers not found", func(t *testing.T) {
		canceler := &fakeCanceler{fn: func(context.Context, commands.CancelSubscriptionCommand) error {
			return domain.ErrSubscriptionNotActive
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Cancel: canceler, Get: ownGetter})

		req := authedRequest(http.MethodPost, "/api/v1/subscriptions/"+subscriptionID.String()+"/cancel", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cancels the current subscription", func(t *testing.T) {
		canceler := &fakeCanceler{forUserFn: func(_ context.Context, gotUser uuid.UUID, reason string) (uuid.UUID, error) {
			assert.Equal(t, userID, gotUser)
			return subscriptionID, nil
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Cancel: canceler})

		req := authedRequest(http.MethodPost, "/api/v1/subscriptions/current/cancel", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, subscriptionID.String(), resp["subscriptionId"])
	})

	t.Run("nothing to cancel", func(t *testing.T) {
		canceler := &fakeCanceler{forUserFn: func(context.Context, uuid.UUID, string) (uuid.UUID, error) {
			return uuid.Nil, domain.ErrNoActiveSubscription
		}}
		mux := newSubscriptionTestServer(t, userID, SubscriptionHandlerConfig{Cancel: canceler})

		req := authedRequest(http.MethodPost, "/api/v1/subscriptions/current/cancel", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
