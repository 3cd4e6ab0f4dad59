package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// RouterConfig wires the handlers and middleware for the HTTP surface.
type RouterConfig struct {
	Health     *HealthHandler
	Middleware []func(http.Handler) http.Handler
}

// NewRouter builds the service router.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	if cfg.Health != nil {
		user := router.PathPrefix("/users/{userID}").Subrouter()
		user.HandleFunc("/dashboard", cfg.Health.Dashboard).Methods(http.MethodGet)
		user.HandleFunc("/refresh", cfg.Health.Refresh).Methods(http.MethodPost)
		user.HandleFunc("/charts/{metric}/{window}", cfg.Health.Chart).Methods(http.MethodGet)
		user.HandleFunc("/leaderboard", cfg.Health.Leaderboard).Methods(http.MethodGet)
		user.HandleFunc("/goals", cfg.Health.Goals).Methods(http.MethodGet)
		user.HandleFunc("/goals", cfg.Health.UpdateGoals).Methods(http.MethodPut)
		user.HandleFunc("/workouts", cfg.Health.RecordWorkout).Methods(http.MethodPost)
		user.HandleFunc("/profile", cfg.Health.Rename).Methods(http.MethodPut)
		user.HandleFunc("/session", cfg.Health.SignOut).Methods(http.MethodDelete)
	}

	var handler http.Handler = router
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handlers.RecoveryHandler()(handler)
}
