package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/brunokim/causal-doc/api"
	"github.com/brunokim/causal-doc/change"
	"github.com/brunokim/causal-doc/converter"
	"github.com/brunokim/causal-doc/document"
)

// HTTPTransport calls the server with JSON over HTTP, and watches documents through a
// websocket.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	dialer  *websocket.Dialer
}

// NewHTTPTransport creates a transport for the server at baseURL, such as
// "http://localhost:8009".
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		dialer:  websocket.DefaultDialer,
	}
}

func (t *HTTPTransport) call(ctx context.Context, path string, req, resp interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrapf(err, "encode %s request", path)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "create %s request", path)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "call %s", path)
	}
	defer httpResp.Body.Close()
	bs, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s response", path)
	}
	if httpResp.StatusCode != http.StatusOK {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(bs, &errResp); err != nil || errResp.Code == "" {
			return errors.Errorf("call %s: %s", path, httpResp.Status)
		}
		return errors.Wrapf(api.FromErrorResponse(errResp), "call %s", path)
	}
	if err := json.Unmarshal(bs, resp); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}

// ActivateClient registers the client and returns its ID.
func (t *HTTPTransport) ActivateClient(ctx context.Context, clientKey string) (string, error) {
	var resp api.ActivateClientResponse
	if err := t.call(ctx, api.ActivateClientPath, api.ActivateClientRequest{ClientKey: clientKey}, &resp); err != nil {
		return "", err
	}
	return resp.ClientID, nil
}

// DeactivateClient unregisters the client.
func (t *HTTPTransport) DeactivateClient(ctx context.Context, clientID string) error {
	var resp api.DeactivateClientResponse
	return t.call(ctx, api.DeactivateClientPath, api.DeactivateClientRequest{ClientID: clientID}, &resp)
}

// AttachDocument pushes the initial changes of a document and pulls its current state.
func (t *HTTPTransport) AttachDocument(ctx context.Context, clientID string, pack *change.Pack) (*change.Pack, error) {
	pb, err := converter.ToChangePack(pack)
	if err != nil {
		return nil, err
	}
	var resp api.AttachDocumentResponse
	if err := t.call(ctx, api.AttachDocumentPath, api.AttachDocumentRequest{ClientID: clientID, ChangePack: pb}, &resp); err != nil {
		return nil, err
	}
	return fromResponsePack(resp.ChangePack)
}

// DetachDocument pushes the last changes of a document and stops tracking the client.
func (t *HTTPTransport) DetachDocument(ctx context.Context, clientID string, pack *change.Pack, removeIfNotAttached bool) (*change.Pack, error) {
	pb, err := converter.ToChangePack(pack)
	if err != nil {
		return nil, err
	}
	req := api.DetachDocumentRequest{ClientID: clientID, ChangePack: pb, RemoveIfNotAttached: removeIfNotAttached}
	var resp api.DetachDocumentResponse
	if err := t.call(ctx, api.DetachDocumentPath, req, &resp); err != nil {
		return nil, err
	}
	return fromResponsePack(resp.ChangePack)
}

// RemoveDocument pushes the last changes of a document and removes it for every client.
func (t *HTTPTransport) RemoveDocument(ctx context.Context, clientID string, pack *change.Pack) (*change.Pack, error) {
	pb, err := converter.ToChangePack(pack)
	if err != nil {
		return nil, err
	}
	var resp api.RemoveDocumentResponse
	if err := t.call(ctx, api.RemoveDocumentPath, api.RemoveDocumentRequest{ClientID: clientID, ChangePack: pb}, &resp); err != nil {
		return nil, err
	}
	return fromResponsePack(resp.ChangePack)
}

// PushPull pushes local changes, and pulls the changes of other clients unless pushOnly.
func (t *HTTPTransport) PushPull(ctx context.Context, clientID string, pack *change.Pack, pushOnly bool) (*change.Pack, error) {
	pb, err := converter.ToChangePack(pack)
	if err != nil {
		return nil, err
	}
	req := api.PushPullRequest{ClientID: clientID, ChangePack: pb, PushOnly: pushOnly}
	var resp api.PushPullResponse
	if err := t.call(ctx, api.PushPullPath, req, &resp); err != nil {
		return nil, err
	}
	return fromResponsePack(resp.ChangePack)
}

func fromResponsePack(pb *converter.ChangePack) (*change.Pack, error) {
	if pb == nil {
		return nil, errors.Wrap(converter.ErrMissingField, "change_pack")
	}
	return converter.FromChangePack(pb)
}

// Watch opens the watch stream of a document.
func (t *HTTPTransport) Watch(ctx context.Context, clientID, documentKey string) (WatchStream, error) {
	u, err := url.Parse(t.baseURL + api.WatchPath)
	if err != nil {
		return nil, errors.Wrap(err, "parse watch URL")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set(api.ClientIDParam, clientID)
	q.Set(api.DocumentKeyParam, documentKey)
	u.RawQuery = q.Encode()

	conn, resp, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "watch %s: %s", documentKey, resp.Status)
		}
		return nil, errors.Wrapf(err, "watch %s", documentKey)
	}
	stream := &wsStream{conn: conn, done: make(chan struct{})}
	go stream.closeOnDone(ctx)
	return stream, nil
}

type wsStream struct {
	conn *websocket.Conn
	done chan struct{}
}

// closeOnDone unblocks Recv when the context of the stream ends.
func (s *wsStream) closeOnDone(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.conn.Close()
	case <-s.done:
	}
}

func (s *wsStream) Recv() (document.WatchResponse, error) {
	var resp document.WatchResponse
	if err := s.conn.ReadJSON(&resp); err != nil {
		return resp, errors.Wrap(err, "receive watch response")
	}
	return resp, nil
}

func (s *wsStream) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
