/*
Package api defines the JSON messages exchanged between clients and the relay server.

Every call is a POST of a request message to the path of the call, answered by a response
message or an ErrorResponse. The watch stream is a websocket opened on WatchPath, which
carries document.WatchResponse messages.
*/
package api

import (
	"github.com/brunokim/causal-doc/converter"
)

// Paths of the calls.
const (
	ActivateClientPath   = "/activate"
	DeactivateClientPath = "/deactivate"
	AttachDocumentPath   = "/attach"
	DetachDocumentPath   = "/detach"
	RemoveDocumentPath   = "/remove"
	PushPullPath         = "/pushpull"
	WatchPath            = "/watch"
)

// Query parameters of the watch stream.
const (
	ClientIDParam    = "client_id"
	DocumentKeyParam = "document_key"
)

type ActivateClientRequest struct {
	ClientKey string `json:"client_key"`
}

type ActivateClientResponse struct {
	ClientID string `json:"client_id"`
}

type DeactivateClientRequest struct {
	ClientID string `json:"client_id"`
}

type DeactivateClientResponse struct{}

type AttachDocumentRequest struct {
	ClientID   string                `json:"client_id"`
	ChangePack *converter.ChangePack `json:"change_pack"`
}

type AttachDocumentResponse struct {
	ChangePack *converter.ChangePack `json:"change_pack"`
}

type DetachDocumentRequest struct {
	ClientID   string                `json:"client_id"`
	ChangePack *converter.ChangePack `json:"change_pack"`
	// RemoveIfNotAttached removes the document when no other client is attached to it.
	RemoveIfNotAttached bool `json:"remove_if_not_attached,omitempty"`
}

type DetachDocumentResponse struct {
	ChangePack *converter.ChangePack `json:"change_pack"`
}

type RemoveDocumentRequest struct {
	ClientID   string                `json:"client_id"`
	ChangePack *converter.ChangePack `json:"change_pack"`
}

type RemoveDocumentResponse struct {
	ChangePack *converter.ChangePack `json:"change_pack"`
}

type PushPullRequest struct {
	ClientID   string                `json:"client_id"`
	ChangePack *converter.ChangePack `json:"change_pack"`
	// PushOnly stores the changes without answering with the ones of other clients.
	PushOnly bool `json:"push_only,omitempty"`
}

type PushPullResponse struct {
	ChangePack *converter.ChangePack `json:"change_pack"`
}
