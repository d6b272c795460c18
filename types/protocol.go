package types

import (
	"encoding/json"

	"effortsync/models"
)

// Server-to-client message types.
const (
	MessageInit       = "init"
	MessageUpdate     = "update"
	MessageRepoChange = "repo_change"
	MessageError      = "error"
	MessageHotReload  = "hot_reload"
)

// Client-to-server message types.
const (
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
)

// Repo change actions.
const (
	RepoActionAdded   = "added"
	RepoActionRemoved = "removed"
)

// InitMessage carries the full current state of every known repo. It is
// sent exactly once per connection, immediately after the connection is
// registered; the client needs no second retrieval path.
type InitMessage struct {
	Type  string                      `json:"type"`
	Repos map[string]models.RepoState `json:"repos"`
}

// UpdateMessage is a full-replacement snapshot for one repo. Updates are
// never partial patches; the client swaps its cached state wholesale.
type UpdateMessage struct {
	Type        string              `json:"type"`
	Repo        string              `json:"repo"`
	WorkEfforts []models.WorkEffort `json:"workEfforts"`
	Stats       models.Stats        `json:"stats"`
	Error       string              `json:"error,omitempty"`
}

// RepoRef identifies a configured repo by name and path.
type RepoRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// RepoChangeMessage announces a repo being added to or removed from the
// tracked set at runtime.
type RepoChangeMessage struct {
	Type   string    `json:"type"`
	Action string    `json:"action"`
	Repo   string    `json:"repo,omitempty"`
	Repos  []RepoRef `json:"repos,omitempty"`
}

// ErrorMessage surfaces a parse or observer failure scoped to one repo.
// Other repos are unaffected.
type ErrorMessage struct {
	Type    string `json:"type"`
	Repo    string `json:"repo"`
	Message string `json:"message"`
}

// HotReloadMessage is a development convenience telling clients that a
// served asset changed. Not part of the steady-state contract.
type HotReloadMessage struct {
	Type string `json:"type"`
	File string `json:"file"`
}

// ClientMessage is the envelope for messages sent by clients. Repos is
// used by subscribe/unsubscribe to scope update delivery.
type ClientMessage struct {
	Type  string   `json:"type"`
	Repos []string `json:"repos"`
}

// Envelope is used to peek at the type of an inbound frame before
// decoding the full payload.
type Envelope struct {
	Type string `json:"type"`
}

// PeekType returns the message type of a raw JSON frame, or an error if
// the frame is not a JSON object with a type field.
func PeekType(raw []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
