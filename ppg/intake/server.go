package intake

import (
	"context"
	"net/http"
	"time"

	gmw "github.com/gorilla/handlers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// path is the single PI-facing endpoint.
const path = "/cgi-bin/wap-push.cgi"

// Handler is implemented by the engine: it receives a PushMessage built
// from a well-formed request and returns no verdict; the outcome reaches
// the PI only through the PushMessage's ReplySink. The HTTP layer itself
// always answers 202 for any
// well-formed envelope, even a semantically invalid one; the semantic
// verdict only ever affects the PAP response body, never the HTTP
// status.
type Handler func(ctx context.Context, msg PushMessage)

// Server wraps net/http's server with the single intake handler and its
// always-202 response-code contract, logged through
// gorilla/handlers.CombinedLoggingHandler.
type Server struct {
	addr    string
	mime    MIMEParser
	decode  PAPDecoder
	handle  Handler
	log     zerolog.Logger
	httpSrv *http.Server
}

// Config configures a Server.
type Config struct {
	Addr       string // e.g. ":8080"
	MIMEParser MIMEParser
	PAPDecoder PAPDecoder
	Handler    Handler
	Log        zerolog.Logger
	AccessLog  RotatingFileSink // optional; nil disables access logging
}

// RotatingFileSink is the io.Writer the CombinedLoggingHandler writes
// through; satisfied by internal/log.RotatingFile.
type RotatingFileSink interface {
	Write(p []byte) (int, error)
}

// NewServer creates a Server. ListenAndServe is not called until Run.
func NewServer(cfg Config) *Server {
	s := &Server{
		addr:   cfg.Addr,
		mime:   cfg.MIMEParser,
		decode: cfg.PAPDecoder,
		handle: cfg.Handler,
		log:    cfg.Log.With().Str("component", "intake").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.servePush)

	var h http.Handler = mux
	if cfg.AccessLog != nil {
		h = gmw.CombinedLoggingHandler(cfg.AccessLog, h)
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run starts listening and blocks until ctx is cancelled or
// ListenAndServe returns a non-shutdown error.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) servePush(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	log := s.log.With().Str("request_id", reqID).Logger()

	contentType := r.Header.Get("Content-Type")

	parts, err := s.mime(contentType, r.Body)
	if err != nil {
		log.Warn().Err(err).Msg("multipart envelope rejected")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	control, err := s.decode(parts.Control.Body)
	if err != nil {
		log.Warn().Err(err).Msg("PAP control entity rejected")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	username := r.URL.Query().Get("username")
	password := r.URL.Query().Get("password")

	sink := &httpReplySink{w: w}
	msg := PushMessage{
		Control:    control,
		Payload:    parts.Payload,
		ReplySink:  sink,
		RemoteAddr: r.RemoteAddr,
		Username:   username,
		Password:   password,
	}

	log.Debug().
		Str("pi_push_id", control.PiPushID).
		Str("client_address", control.Address).
		Str("tcp_peer", r.RemoteAddr).
		Msg("push accepted for processing")

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusAccepted)
	s.handle(r.Context(), msg)
}

// httpReplySink writes the synchronous PAP response document as the
// body of the still-open request: the status is always 202, the PAP
// document carries the actual verdict. It is only valid for the
// duration of the originating request; asynchronous notification to
// ppg_notify_requested_to uses NotifyURLSink instead, since by the time
// that fires the original connection may already be closed.
type httpReplySink struct {
	w http.ResponseWriter
}

func (h *httpReplySink) Send(_ context.Context, doc []byte) error {
	_, err := h.w.Write(doc)
	return err
}
