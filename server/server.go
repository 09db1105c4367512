/*
Package server is an in-memory relay for documents: it stores the changes clients push,
hands them to the other clients of the document, and tells watchers when a document
changes or a client starts or stops watching it.

The server doesn't persist anything, and keeps every change in memory. It keeps a
replica of each document to answer clients that lag too far behind with a snapshot.
*/
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunokim/causal-doc/api"
	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/converter"
	"github.com/brunokim/causal-doc/document"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger of the server.
func WithLogger(logger log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the counters of the server, and serves them on /metrics if
// exposed.
func WithMetrics(m *Metrics, exposed bool) Option {
	return func(s *Server) {
		s.metrics = m
		s.exposeMetrics = exposed
	}
}

// WithBroadcaster sets how watch events reach watchers. An in-process hub is used by
// default.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Server) { s.broadcaster = b }
}

// WithSnapshotThreshold sets how many changes a client may lag behind before it is sent
// a snapshot instead.
func WithSnapshotThreshold(n int) Option {
	return func(s *Server) { s.snapshotThreshold = n }
}

// WithDebugTrace writes every request and response to w, one JSON object per line.
func WithDebugTrace(w io.Writer) Option {
	return func(s *Server) { s.debugWriter = w }
}

// Server answers the calls of clients. It implements http.Handler.
type Server struct {
	state       *state
	broadcaster Broadcaster
	router      *mux.Router
	upgrader    websocket.Upgrader

	logger            log.Logger
	metrics           *Metrics
	exposeMetrics     bool
	snapshotThreshold int
	debugWriter       io.Writer
	debug             *debugTrace
}

// New creates a server with no clients nor documents.
func New(opts ...Option) *Server {
	s := &Server{
		logger:            log.NewNopLogger(),
		metrics:           NewMetrics(false),
		snapshotThreshold: DefaultSnapshotThreshold,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.broadcaster == nil {
		s.broadcaster = NewHub(s.logger)
	}
	if s.debugWriter != nil {
		s.debug = runDebug(s.debugWriter, s.logger)
	}
	s.state = newState(s.snapshotThreshold, s.logger, s.metrics)

	r := mux.NewRouter()
	r.HandleFunc(api.ActivateClientPath, s.handle(api.ActivateClientPath, s.activateClient)).Methods(http.MethodPost)
	r.HandleFunc(api.DeactivateClientPath, s.handle(api.DeactivateClientPath, s.deactivateClient)).Methods(http.MethodPost)
	r.HandleFunc(api.AttachDocumentPath, s.handle(api.AttachDocumentPath, s.attachDocument)).Methods(http.MethodPost)
	r.HandleFunc(api.DetachDocumentPath, s.handle(api.DetachDocumentPath, s.detachDocument)).Methods(http.MethodPost)
	r.HandleFunc(api.RemoveDocumentPath, s.handle(api.RemoveDocumentPath, s.removeDocument)).Methods(http.MethodPost)
	r.HandleFunc(api.PushPullPath, s.handle(api.PushPullPath, s.pushPull)).Methods(http.MethodPost)
	r.HandleFunc(api.WatchPath, s.watchDocument).Methods(http.MethodGet)
	if s.exposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	s.router = r
	return s
}

// NewFromConfig creates a server from its config, connecting to Redis and opening the
// debug trace if enabled.
func NewFromConfig(ctx context.Context, conf *Config, logger log.Logger) (*Server, error) {
	opts := []Option{
		WithLogger(logger),
		WithMetrics(NewMetrics(conf.Metrics), conf.Metrics),
		WithSnapshotThreshold(conf.SnapshotThreshold),
	}
	if conf.RedisAddr != "" {
		b, err := NewRedisBroadcaster(ctx, conf.RedisAddr, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithBroadcaster(b))
	}
	if conf.DebugFile != "" {
		f, err := createDebug(conf.DebugFile)
		if err != nil {
			return nil, errors.Wrap(err, "open debug trace")
		}
		opts = append(opts, WithDebugTrace(f))
	}
	return New(opts...), nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close flushes the debug trace and disconnects the broadcaster.
func (s *Server) Close() error {
	s.debug.close()
	return s.broadcaster.Close()
}

// ChangesLen returns the number of changes stored for a document.
func (s *Server) ChangesLen(key string) int {
	return s.state.changesLen(key)
}

type handlerFunc func(ctx context.Context, body []byte) (req, resp interface{}, clientID string, err error)

// handle decodes the request of a call, and encodes its response or error.
func (s *Server) handle(path string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		defer func() {
			s.metrics.Requests.With("path", path, "code", strconv.Itoa(status)).Add(1)
		}()

		var req, resp interface{}
		var clientID string
		body, err := io.ReadAll(r.Body)
		if err == nil {
			req, resp, clientID, err = fn(r.Context(), body)
		}
		entry := debugEntry{Type: path, ClientID: clientID, Request: req, Response: resp}

		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			var errResp api.ErrorResponse
			errResp, status = api.ToErrorResponse(err)
			entry.Error = err.Error()
			if status == http.StatusInternalServerError {
				level.Error(s.logger).Log("msg", "request failed", "path", path, "err", err)
			} else {
				level.Debug(s.logger).Log("msg", "request rejected", "path", path, "err", err)
			}
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(errResp)
		} else {
			json.NewEncoder(w).Encode(resp)
		}
		s.debug.write(entry)
	}
}

func decode(body []byte, req interface{}) error {
	if err := json.Unmarshal(body, req); err != nil {
		return errors.Wrap(api.ErrInvalidRequest, err.Error())
	}
	return nil
}

func fromRequestPack(pb *converter.ChangePack) (*change.Pack, error) {
	if pb == nil {
		return nil, errors.Wrap(api.ErrInvalidRequest, "missing change_pack")
	}
	pack, err := converter.FromChangePack(pb)
	if err != nil {
		return nil, errors.Wrap(api.ErrInvalidRequest, err.Error())
	}
	return pack, nil
}

func toResponsePack(pack *change.Pack) (*converter.ChangePack, error) {
	pb, err := converter.ToChangePack(pack)
	if err != nil {
		return nil, errors.Wrap(api.ErrInternal, err.Error())
	}
	return pb, nil
}

func (s *Server) activateClient(_ context.Context, body []byte) (interface{}, interface{}, string, error) {
	var req api.ActivateClientRequest
	if err := decode(body, &req); err != nil {
		return nil, nil, "", err
	}
	if req.ClientKey == "" {
		return req, nil, "", errors.Wrap(api.ErrInvalidRequest, "missing client_key")
	}
	id := s.state.activate(req.ClientKey)
	return req, api.ActivateClientResponse{ClientID: id}, id, nil
}

func (s *Server) deactivateClient(_ context.Context, body []byte) (interface{}, interface{}, string, error) {
	var req api.DeactivateClientRequest
	if err := decode(body, &req); err != nil {
		return nil, nil, "", err
	}
	if err := s.state.deactivate(req.ClientID); err != nil {
		return req, nil, req.ClientID, err
	}
	return req, api.DeactivateClientResponse{}, req.ClientID, nil
}

// packCall is the shared part of the calls that push a change pack.
func (s *Server) packCall(
	ctx context.Context,
	clientID string,
	pb *converter.ChangePack,
	call func(pack *change.Pack) (*change.Pack, int, error),
	alwaysNotify bool,
) (*converter.ChangePack, error) {
	pack, err := fromRequestPack(pb)
	if err != nil {
		return nil, err
	}
	resp, pushed, err := call(pack)
	if err != nil {
		return nil, err
	}
	if pushed > 0 || alwaysNotify {
		event := document.WatchResponse{Type: document.DocumentChanged, Publisher: clientID}
		if err := s.broadcaster.Publish(ctx, pack.DocumentKey, event); err != nil {
			level.Warn(s.logger).Log("msg", "failed to publish document change", "document", pack.DocumentKey, "err", err)
		}
	}
	return toResponsePack(resp)
}

func (s *Server) attachDocument(ctx context.Context, body []byte) (interface{}, interface{}, string, error) {
	var req api.AttachDocumentRequest
	if err := decode(body, &req); err != nil {
		return nil, nil, "", err
	}
	pb, err := s.packCall(ctx, req.ClientID, req.ChangePack, func(pack *change.Pack) (*change.Pack, int, error) {
		return s.state.attach(req.ClientID, pack)
	}, false)
	if err != nil {
		return req, nil, req.ClientID, err
	}
	return req, api.AttachDocumentResponse{ChangePack: pb}, req.ClientID, nil
}

func (s *Server) detachDocument(ctx context.Context, body []byte) (interface{}, interface{}, string, error) {
	var req api.DetachDocumentRequest
	if err := decode(body, &req); err != nil {
		return nil, nil, "", err
	}
	pb, err := s.packCall(ctx, req.ClientID, req.ChangePack, func(pack *change.Pack) (*change.Pack, int, error) {
		return s.state.detach(req.ClientID, pack, req.RemoveIfNotAttached)
	}, false)
	if err != nil {
		return req, nil, req.ClientID, err
	}
	return req, api.DetachDocumentResponse{ChangePack: pb}, req.ClientID, nil
}

func (s *Server) removeDocument(ctx context.Context, body []byte) (interface{}, interface{}, string, error) {
	var req api.RemoveDocumentRequest
	if err := decode(body, &req); err != nil {
		return nil, nil, "", err
	}
	pb, err := s.packCall(ctx, req.ClientID, req.ChangePack, func(pack *change.Pack) (*change.Pack, int, error) {
		return s.state.remove(req.ClientID, pack)
	}, true)
	if err != nil {
		return req, nil, req.ClientID, err
	}
	return req, api.RemoveDocumentResponse{ChangePack: pb}, req.ClientID, nil
}

func (s *Server) pushPull(ctx context.Context, body []byte) (interface{}, interface{}, string, error) {
	var req api.PushPullRequest
	if err := decode(body, &req); err != nil {
		return nil, nil, "", err
	}
	pb, err := s.packCall(ctx, req.ClientID, req.ChangePack, func(pack *change.Pack) (*change.Pack, int, error) {
		return s.state.pushPullRequest(req.ClientID, pack, req.PushOnly)
	}, false)
	if err != nil {
		return req, nil, req.ClientID, err
	}
	return req, api.PushPullResponse{ChangePack: pb}, req.ClientID, nil
}

// watchDocument streams the events of a document over a websocket, starting with the
// clients already watching it.
func (s *Server) watchDocument(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID, key := q.Get(api.ClientIDParam), q.Get(api.DocumentKeyParam)
	logger := log.With(s.logger, "client", clientID, "document", key)
	if err := s.state.checkAttached(clientID, key); err != nil {
		errResp, status := api.ToErrorResponse(err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(errResp)
		return
	}

	events, cancel, err := s.broadcaster.Subscribe(r.Context(), key)
	if err != nil {
		level.Error(logger).Log("msg", "failed to subscribe to document events", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer cancel()
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		level.Warn(logger).Log("msg", "failed to upgrade watch connection", "err", err)
		return
	}
	defer conn.Close()

	s.metrics.Watchers.Add(1)
	watchers := s.state.addWatcher(key, clientID)
	defer func() {
		s.metrics.Watchers.Add(-1)
		if s.state.removeWatcher(key, clientID) {
			event := document.WatchResponse{Type: document.DocumentUnwatched, Publisher: clientID}
			if err := s.broadcaster.Publish(context.Background(), key, event); err != nil {
				level.Warn(logger).Log("msg", "failed to publish unwatch", "err", err)
			}
		}
		level.Debug(logger).Log("msg", "watch stream closed")
	}()

	initial := document.WatchResponse{Type: document.WatchInitialization, ClientIDs: watchers}
	if err := conn.WriteJSON(initial); err != nil {
		return
	}
	event := document.WatchResponse{Type: document.DocumentWatched, Publisher: clientID}
	if err := s.broadcaster.Publish(r.Context(), key, event); err != nil {
		level.Warn(logger).Log("msg", "failed to publish watch", "err", err)
	}
	level.Debug(logger).Log("msg", "watch stream opened", "watchers", len(watchers))

	// Clients send nothing: reading only detects the end of the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

// ListenAndServe serves s on addr until ctx ends.
func ListenAndServe(ctx context.Context, addr string, s *Server, logger log.Logger) error {
	srv := &http.Server{Addr: addr, Handler: s}
	errs := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "serving", "addr", addr)
		errs <- srv.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		level.Info(logger).Log("msg", "shutting down")
		if err := srv.Shutdown(context.Background()); err != nil {
			return err
		}
		return s.Close()
	}
}
