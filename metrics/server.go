package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/blockcast/mcastcheck/internal/errors"
	"github.com/blockcast/mcastcheck/internal/logger"
)

// Server exposes a registry over HTTP until its context ends.
type Server struct {
	srv  *http.Server
	ln   net.Listener
	done chan struct{}
}

// Start listens on addr and serves reg at path in the background.
func Start(ctx context.Context, addr, path string, reg *prometheus.Registry, log logger.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, apperrors.WrapTransportError(err, "listen for metrics")
	}

	router := mux.NewRouter()
	router.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).
		Methods(http.MethodGet, http.MethodHead)

	s := &Server{
		srv: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:   ln,
		done: make(chan struct{}),
	}
	log.WithFields(map[string]interface{}{
		"addr": ln.Addr().String(),
		"path": path,
	}).Info("Starting metrics server")

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Done is closed once the server has stopped.
func (s *Server) Done() <-chan struct{} {
	return s.done
}
