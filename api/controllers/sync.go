package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/offline-pos/api/middleware"
	"github.com/angelmondragon/offline-pos/api/responses"
	"github.com/angelmondragon/offline-pos/api/validators"
	"github.com/angelmondragon/offline-pos/internal/operator"
	"github.com/angelmondragon/offline-pos/internal/syncengine"
	"github.com/angelmondragon/offline-pos/pkg/db/models"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
)

// SyncOperator is the staff-facing view of the sync queue.
type SyncOperator interface {
	Status(ctx context.Context) (operator.Status, error)
	ListFailed(ctx context.Context) ([]operator.FailedEnvelope, error)
	Retry(ctx context.Context, id uuid.UUID, actor, reason string) (*models.SyncEnvelope, error)
	Cancel(ctx context.Context, id uuid.UUID, actor, reason string) (*models.SyncEnvelope, error)
	Drain(ctx context.Context) (syncengine.Result, error)
	History(ctx context.Context, id uuid.UUID) ([]models.OperatorAction, error)
}

type envelopeActionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type envelopeResponse struct {
	ID          uuid.UUID `json:"id"`
	Type        string    `json:"type"`
	Action      string    `json:"action"`
	AggregateID string    `json:"aggregate_id"`
	State       string    `json:"state"`
	Attempts    int       `json:"attempts"`
}

func newEnvelopeResponse(env *models.SyncEnvelope) envelopeResponse {
	return envelopeResponse{
		ID:          env.ID,
		Type:        env.Type.String(),
		Action:      env.Action.String(),
		AggregateID: env.AggregateID,
		State:       env.State.String(),
		Attempts:    env.Attempts,
	}
}

func SyncStatus(svc SyncOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sync unavailable"))
			return
		}
		status, err := svc.Status(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func SyncFailed(svc SyncOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sync unavailable"))
			return
		}
		items, err := svc.ListFailed(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// SyncRetry requeues a failed envelope. The operator header is required.
func SyncRetry(svc SyncOperator, logg *logger.Logger) http.HandlerFunc {
	return envelopeAction(svc, logg, func(ctx context.Context, id uuid.UUID, actor, reason string) (*models.SyncEnvelope, error) {
		return svc.Retry(ctx, id, actor, reason)
	})
}

// SyncCancel abandons a failed envelope. The operator header is required.
func SyncCancel(svc SyncOperator, logg *logger.Logger) http.HandlerFunc {
	return envelopeAction(svc, logg, func(ctx context.Context, id uuid.UUID, actor, reason string) (*models.SyncEnvelope, error) {
		return svc.Cancel(ctx, id, actor, reason)
	})
}

func envelopeAction(svc SyncOperator, logg *logger.Logger, act func(context.Context, uuid.UUID, string, string) (*models.SyncEnvelope, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sync unavailable"))
			return
		}
		id, err := envelopeID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload envelopeActionRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithEnvelopeID(ctx, id.String())
		}
		env, err := act(ctx, id, middleware.OperatorFromContext(r.Context()), validators.SanitizeString(payload.Reason, 500))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newEnvelopeResponse(env))
	}
}

func SyncHistory(svc SyncOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sync unavailable"))
			return
		}
		id, err := envelopeID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actions, err := svc.History(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, actions)
	}
}

// SyncDrain runs a drain now and reports what it did.
func SyncDrain(svc SyncOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sync unavailable"))
			return
		}
		res, err := svc.Drain(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func envelopeID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid envelope id").WithDetails(map[string]any{"id": raw})
	}
	return id, nil
}
