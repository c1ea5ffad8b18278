package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	textact "github.com/EugeneMsv/textact"
	"github.com/EugeneMsv/textact/internal/logging"
	"github.com/EugeneMsv/textact/internal/metrics"
	"github.com/EugeneMsv/textact/internal/requestlog"
	"github.com/EugeneMsv/textact/internal/storage"
	"github.com/EugeneMsv/textact/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxActionBody caps action request bodies well above any sane selection.
const maxActionBody = 1 << 20

// newRouter builds the HTTP router.
func newRouter(dispatcher *textact.Dispatcher, store storage.Store, logw requestlog.Writer, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(corsMiddleware(corsOrigins...))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Embedded settings page.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/settings", http.StatusFound)
	})
	r.Get("/settings", func(w http.ResponseWriter, _ *http.Request) {
		page, err := web.Assets.ReadFile("settings.html")
		if err != nil {
			http.Error(w, "settings page unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})

	r.Post("/v1/actions/{action}", actionHandler(dispatcher))

	r.Route("/v1/settings", func(r chi.Router) {
		r.Get("/", getSettingsHandler(dispatcher))
		r.Put("/", putSettingsHandler(dispatcher, store))
		r.Delete("/", deleteSettingsHandler(dispatcher))
	})

	r.Get("/v1/storage/usage", usageHandler(store))
	r.Get("/v1/logs", logsHandler(logw))
	r.Delete("/v1/cache", func(w http.ResponseWriter, _ *http.Request) {
		dispatcher.Cache().Clear()
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func actionHandler(dispatcher *textact.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req textact.ActionRequest
		body := http.MaxBytesReader(w, r.Body, maxActionBody)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Action = textact.Action(chi.URLParam(r, "action"))

		result, err := dispatcher.Do(r.Context(), req)
		if err != nil {
			status := actionErrorStatus(err)
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// actionErrorStatus maps dispatch failures onto HTTP statuses. Remote
// provider failures come back as 502 so clients can tell them apart from
// local rejections.
func actionErrorStatus(err error) int {
	var remote *textact.RemoteError
	switch {
	case errors.Is(err, textact.ErrBlockedDomain):
		return http.StatusForbidden
	case errors.Is(err, textact.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &remote):
		return http.StatusBadGateway
	case errors.Is(err, textact.ErrNoProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}

func getSettingsHandler(dispatcher *textact.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loaded, err := dispatcher.Settings().Load(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, loaded)
	}
}

func putSettingsHandler(dispatcher *textact.Dispatcher, store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActionBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		saved, err := dispatcher.Settings().SaveJSON(r.Context(), raw)
		if err != nil {
			var quotaErr *storage.QuotaError
			switch {
			case errors.As(err, &quotaErr):
				metrics.StorageQuotaRejections.WithLabelValues(quotaErr.Scope).Inc()
				writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			case errors.Is(err, storage.ErrInvalidValue):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}

		updateStorageGauge(r, store)
		writeJSON(w, http.StatusOK, saved)
	}
}

func deleteSettingsHandler(dispatcher *textact.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := dispatcher.Settings().Reset(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func usageHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		used, err := store.BytesInUse(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		metrics.StorageBytesInUse.Set(float64(used))
		limits := store.Limits()
		writeJSON(w, http.StatusOK, map[string]int{
			"bytesInUse": used,
			"itemLimit":  limits.ItemBytes,
			"totalLimit": limits.TotalBytes,
		})
	}
}

func logsHandler(logw requestlog.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reader, ok := logw.(*requestlog.SQLWriter)
		if !ok {
			writeJSON(w, http.StatusOK, []requestlog.Entry{})
			return
		}
		entries, err := reader.Recent(r.Context(), 100)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func updateStorageGauge(r *http.Request, store storage.Store) {
	if used, err := store.BytesInUse(r.Context()); err == nil {
		metrics.StorageBytesInUse.Set(float64(used))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": message},
	})
}
