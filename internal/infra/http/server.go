package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/fines"
	"github.com/shulebox/circulation/internal/reports"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// CirculationReader is the read-only slice of the circulation service the
// HTTP surface needs.
type CirculationReader interface {
	Recommend(ctx context.Context, memberID string, limit int) ([]books.Book, error)
	MemberFines(ctx context.Context, memberID string) ([]fines.Fine, error)
}

type StatsProvider interface {
	Statistics(ctx context.Context, schoolID string) (*circulation.Statistics, error)
}

type Server struct {
	srv *http.Server
	log *slog.Logger
}

func New(addr string, exposeMetrics bool, svc CirculationReader, stats StatsProvider, log *slog.Logger) *Server {
	s := &Server{log: log}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if exposeMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		out, err := stats.Statistics(r.Context(), r.URL.Query().Get("school"))
		if err != nil {
			s.fail(w, err)
			return
		}
		s.writeJSON(w, out)
	})

	mux.HandleFunc("GET /stats/export", func(w http.ResponseWriter, r *http.Request) {
		out, err := stats.Statistics(r.Context(), r.URL.Query().Get("school"))
		if err != nil {
			s.fail(w, err)
			return
		}
		buf, err := reports.StatisticsWorkbook(out)
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="circulation_stats.xlsx"`)
		_, _ = w.Write(buf.Bytes())
	})

	mux.HandleFunc("GET /recommendations", func(w http.ResponseWriter, r *http.Request) {
		memberID := r.URL.Query().Get("member")
		if memberID == "" {
			http.Error(w, "member is required", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 10
		}
		out, err := svc.Recommend(r.Context(), memberID, limit)
		if err != nil {
			s.fail(w, err)
			return
		}
		s.writeJSON(w, out)
	})

	mux.HandleFunc("GET /fines", func(w http.ResponseWriter, r *http.Request) {
		memberID := r.URL.Query().Get("member")
		if memberID == "" {
			http.Error(w, "member is required", http.StatusBadRequest)
			return
		}
		out, err := svc.MemberFines(r.Context(), memberID)
		if err != nil {
			s.fail(w, err)
			return
		}
		s.writeJSON(w, out)
	})

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := jsonAPI.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, circulation.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, circulation.ErrInvalidState), errors.Is(err, circulation.ErrPolicyDenied):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, circulation.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
