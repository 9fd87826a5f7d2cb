package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/offline-pos/api/responses"
	"github.com/angelmondragon/offline-pos/api/validators"
	"github.com/angelmondragon/offline-pos/internal/connectivity"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
)

// ConnectivitySignal is the terminal's online/offline switch.
type ConnectivitySignal interface {
	Status() connectivity.Status
	Set(ctx context.Context, online bool) bool
}

type connectivityRequest struct {
	Online *bool `json:"online" validate:"required"`
}

func ConnectivityGet(sig ConnectivitySignal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sig == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "connectivity unavailable"))
			return
		}
		responses.WriteSuccess(w, sig.Status())
	}
}

// ConnectivitySet records an explicit online/offline report from the UI or
// the OS network stack.
func ConnectivitySet(sig ConnectivitySignal, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sig == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "connectivity unavailable"))
			return
		}
		var payload connectivityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sig.Set(r.Context(), *payload.Online)
		responses.WriteSuccess(w, sig.Status())
	}
}
