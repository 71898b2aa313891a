package protocol

import "fmt"

// ServerProtocol is the host bridge protocol version this server speaks.
const ServerProtocol = 1

// Host bridge methods and events.
const (
	EventChallenge = "connect.challenge"
	MethodConnect  = "connect"

	// host → server requests
	MethodQueryResult     = "query.result"
	MethodStateUpdate     = "state.update"
	MethodPlaylistCreated = "playlist.created"
	MethodPlaylistDeleted = "playlist.deleted"

	// server → host events
	EventCommand = "ytm.command"
	EventQuery   = "ytm.query"
)

// Realtime channel events.
const (
	EventStateUpdate     = "state-update"
	EventPlaylistCreated = "playlist-created"
	EventPlaylistDeleted = "playlist-deleted"
)

// Challenge is the payload of connect.challenge.
type Challenge struct {
	Nonce string `json:"nonce"`
	Ts    int64  `json:"ts"`
}

// ConnectParams is sent by the host in its connect request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

type ConnectAuth struct {
	Token string `json:"token"`
}

// ValidateConnect checks that the server's protocol version falls within
// the host's advertised [MinProtocol, MaxProtocol] range.
func ValidateConnect(params ConnectParams) error {
	if ServerProtocol < params.MinProtocol || ServerProtocol > params.MaxProtocol {
		return &FrameError{
			Code:    CodeProtocolMismatch,
			Message: fmt.Sprintf("server protocol %d not in client range [%d, %d]", ServerProtocol, params.MinProtocol, params.MaxProtocol),
		}
	}
	return nil
}

// HelloOk is the payload of a successful connect response.
type HelloOk struct {
	Protocol int        `json:"protocol"`
	Server   ServerInfo `json:"server"`
	Features Features   `json:"features"`
	Policy   Policy     `json:"policy"`
}

type ServerInfo struct {
	Version   string `json:"version"`
	SessionID string `json:"sessionId"`
}

type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

type Policy struct {
	MaxPayload     int `json:"maxPayload"`
	TickIntervalMs int `json:"tickIntervalMs"`
}

// CommandEvent is the payload of ytm.command.
type CommandEvent struct {
	Command string `json:"command"`
	Value   any    `json:"value,omitempty"`
}

// QueryEvent is the payload of ytm.query.
type QueryEvent struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// PlaylistRef identifies a deleted playlist.
type PlaylistRef struct {
	ID string `json:"id"`
}
