package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Command names accepted on a gateway connection.
type Command string

// Gateway commands. Identify must be the first command on a connection; all
// others require an identified session.
const (
	CommandIdentify           Command = "identify"
	CommandSubscribeHub       Command = "subscribe_hub"
	CommandUnsubscribeHub     Command = "unsubscribe_hub"
	CommandSubscribeChannel   Command = "subscribe_channel"
	CommandUnsubscribeChannel Command = "unsubscribe_channel"
	CommandStartTyping        Command = "start_typing"
	CommandStopTyping         Command = "stop_typing"
	CommandSendMessage        Command = "send_message"
)

// CommandFrame is the client-to-server gateway frame. MessageID is chosen by
// the client and echoed back in the acknowledgement. Unused fields for a given
// command are omitted.
type CommandFrame struct {
	MessageID uint64     `json:"message_id"`
	Command   Command    `json:"command"`
	Token     string     `json:"token,omitempty"`
	HubID     *uuid.UUID `json:"hub_id,omitempty"`
	ChannelID *uuid.UUID `json:"channel_id,omitempty"`
	Content   string     `json:"content,omitempty"`
}

// ResponseStatus is the outcome tag of a command acknowledgement.
type ResponseStatus string

// Acknowledgement statuses.
const (
	ResponseSuccess ResponseStatus = "success"
	ResponseID      ResponseStatus = "id"
	ResponseError   ResponseStatus = "error"
)

// ResponseFrame acknowledges a command, correlated by the client-supplied
// message id. ID is set for ResponseID (the id of a sent message), Err for
// ResponseError.
type ResponseFrame struct {
	RespondingTo uint64         `json:"responding_to"`
	Response     ResponseStatus `json:"response"`
	ID           *uuid.UUID     `json:"id,omitempty"`
	Err          *Error         `json:"error,omitempty"`
}

// EventFrame is the server-to-client envelope for dispatch events.
type EventFrame struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewSuccessFrame returns a serialised success acknowledgement.
func NewSuccessFrame(respondingTo uint64) ([]byte, error) {
	return json.Marshal(ResponseFrame{RespondingTo: respondingTo, Response: ResponseSuccess})
}

// NewIDFrame returns a serialised acknowledgement carrying a created id.
func NewIDFrame(respondingTo uint64, id uuid.UUID) ([]byte, error) {
	return json.Marshal(ResponseFrame{RespondingTo: respondingTo, Response: ResponseID, ID: &id})
}

// NewErrorFrame returns a serialised error acknowledgement.
func NewErrorFrame(respondingTo uint64, err *Error) ([]byte, error) {
	return json.Marshal(ResponseFrame{RespondingTo: respondingTo, Response: ResponseError, Err: err})
}

// NewEventFrame returns a serialised dispatch frame wrapping the given
// already-marshalled event payload.
func NewEventFrame(event EventType, data json.RawMessage) ([]byte, error) {
	return json.Marshal(EventFrame{Event: event, Data: data})
}
