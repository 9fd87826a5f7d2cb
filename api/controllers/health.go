package controllers

import (
	"net/http"

	"github.com/angelmondragon/offline-pos/api/responses"
	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/db"
	pkgerrors "github.com/angelmondragon/offline-pos/pkg/errors"
	"github.com/angelmondragon/offline-pos/pkg/logger"
)

const envHeader = "X-POS-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready once the local store answers. A terminal with an
// unavailable store still serves online-only checkout, so the response names
// the mode instead of failing outright.
func HealthReady(cfg *config.Config, store db.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		if store == nil {
			responses.WriteSuccess(w, map[string]string{"status": "ready", "mode": "online-only"})
			return
		}
		if err := store.Ping(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "local store unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready", "mode": "offline-first"})
	}
}
