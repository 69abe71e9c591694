package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// Checker проверяет зависимость (база, кэш). nil = здорова.
type Checker func(ctx context.Context) error

// HealthHandler отвечает 200, пока процесс жив
func HealthHandler(service, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": service,
			"version": version,
		})
	}
}

// ReadyHandler выполняет все проверки; при любой ошибке отвечает 503
func ReadyHandler(checks map[string]Checker) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready := true
		result := make(map[string]string, len(checks))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				ready = false
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ready": ready, "checks": result})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// ответ уже начат, ошибку записи сообщить некуда
	_ = json.NewEncoder(w).Encode(body)
}
