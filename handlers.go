package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kwv/planalign/align"
	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(controller *align.Controller, hub *Hub, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			SessionID string    `json:"sessionId"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			SessionID: controller.Snapshot().SessionID,
		}
		writeJSON(w, http.StatusOK, status)
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, controller.Snapshot())
	})

	r.Put("/hit", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		hit, err := align.ParseHit(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		controller.UpdateHit(hit)
		writeJSON(w, http.StatusOK, controller.Snapshot())
	})

	r.Delete("/hit", func(w http.ResponseWriter, _ *http.Request) {
		controller.UpdateHit(nil)
		writeJSON(w, http.StatusOK, controller.Snapshot())
	})

	r.Post("/anchors/{target}", func(w http.ResponseWriter, r *http.Request) {
		target, err := align.ParseAnchorTarget(chi.URLParam(r, "target"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		outcome, err := controller.Set(target)
		if err != nil {
			writeJSON(w, statusFor(err), struct {
				Error    string         `json:"error"`
				Snapshot align.Snapshot `json:"snapshot"`
			}{err.Error(), controller.Snapshot()})
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	})

	r.Post("/reset", func(w http.ResponseWriter, _ *http.Request) {
		controller.Reset()
		writeJSON(w, http.StatusOK, controller.Snapshot())
	})

	r.Get("/pose", func(w http.ResponseWriter, _ *http.Request) {
		pose := controller.Node().Pose()
		resp := struct {
			align.Pose
			Rotation align.Quaternion `json:"rotationQuaternion"`
		}{pose, pose.Quaternion()}
		writeJSON(w, http.StatusOK, resp)
	})

	if hub != nil {
		r.Get("/ws", hub.ServeHTTP)
	}

	return r
}

// statusFor maps controller errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, align.ErrNoCurrentHit):
		return http.StatusConflict
	case errors.Is(err, align.ErrDegenerateInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, align.ErrUnknownTarget):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// requestLogger logs one line per request with the chi request id
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestId", middleware.GetReqID(r.Context())),
				zap.String("remote", r.RemoteAddr))
		})
	}
}
