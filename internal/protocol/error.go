// Package protocol defines the wire-level contracts shared by the HTTP API and
// the gateway: error codes, command frames, and dispatch event envelopes. The
// sets here are closed; handlers map internal sentinel errors onto them at the
// edge.
package protocol

import (
	"net/http"

	"github.com/hubline-chat/hubline-server/internal/permission"
)

// ErrorCode is a wire error tag.
type ErrorCode string

// Wire error codes.
const (
	CodeNotAuthenticated         ErrorCode = "not_authenticated"
	CodeNotAMember               ErrorCode = "not_a_member"
	CodeBanned                   ErrorCode = "banned"
	CodeMuted                    ErrorCode = "muted"
	CodeHubNotFound              ErrorCode = "hub_not_found"
	CodeChannelNotFound          ErrorCode = "channel_not_found"
	CodeMessageNotFound          ErrorCode = "message_not_found"
	CodeUserNotFound             ErrorCode = "user_not_found"
	CodeMemberNotFound           ErrorCode = "member_not_found"
	CodeMissingHubPermission     ErrorCode = "missing_hub_permission"
	CodeMissingChannelPermission ErrorCode = "missing_channel_permission"
	CodeInvalidName              ErrorCode = "invalid_name"
	CodeInvalidText              ErrorCode = "invalid_text"
	CodeTooBig                   ErrorCode = "too_big"
	CodeDataError                ErrorCode = "data_error"
	CodeIndexError               ErrorCode = "index_error"
	CodeMessageSendFailed        ErrorCode = "message_send_failed"
	CodeInternal                 ErrorCode = "internal"
)

// DataErrorKind identifies which storage operation failed.
type DataErrorKind string

// Data error kinds.
const (
	DataRead        DataErrorKind = "read"
	DataWrite       DataErrorKind = "write"
	DataSerialize   DataErrorKind = "serialize"
	DataDeserialize DataErrorKind = "deserialize"
	DataDirectory   DataErrorKind = "directory"
	DataDelete      DataErrorKind = "delete"
)

// IndexErrorKind identifies which index operation failed.
type IndexErrorKind string

// Index error kinds.
const (
	IndexOpen   IndexErrorKind = "open"
	IndexReader IndexErrorKind = "reader"
	IndexWriter IndexErrorKind = "writer"
	IndexParse  IndexErrorKind = "parse"
	IndexSearch IndexErrorKind = "search"
	IndexCommit IndexErrorKind = "commit"
	IndexReload IndexErrorKind = "reload"
	IndexGet    IndexErrorKind = "get"
)

// Error is the structured error returned on the wire. The optional fields
// carry the parameter of parameterised codes (the missing permission, or the
// data/index sub-kind).
type Error struct {
	Code              ErrorCode                    `json:"code"`
	HubPermission     permission.HubPermission     `json:"hub_permission,omitempty"`
	ChannelPermission permission.ChannelPermission `json:"channel_permission,omitempty"`
	Kind              string                       `json:"kind,omitempty"`
}

func (e *Error) Error() string {
	switch {
	case e.HubPermission != "":
		return string(e.Code) + "(" + string(e.HubPermission) + ")"
	case e.ChannelPermission != "":
		return string(e.Code) + "(" + string(e.ChannelPermission) + ")"
	case e.Kind != "":
		return string(e.Code) + "(" + e.Kind + ")"
	}
	return string(e.Code)
}

// Is reports whether target is a protocol error with the same code, so
// errors.Is can match on the code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError returns a plain error for an unparameterised code.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code}
}

// MissingHubPermission returns the error for a hub permission the caller lacks.
func MissingHubPermission(p permission.HubPermission) *Error {
	return &Error{Code: CodeMissingHubPermission, HubPermission: p}
}

// MissingChannelPermission returns the error for a channel permission the
// caller lacks.
func MissingChannelPermission(p permission.ChannelPermission) *Error {
	return &Error{Code: CodeMissingChannelPermission, ChannelPermission: p}
}

// DataError returns a storage error with the given sub-kind.
func DataError(kind DataErrorKind) *Error {
	return &Error{Code: CodeDataError, Kind: string(kind)}
}

// IndexError returns an index error with the given sub-kind.
func IndexError(kind IndexErrorKind) *Error {
	return &Error{Code: CodeIndexError, Kind: string(kind)}
}

// HTTPStatus maps the error code to an HTTP response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNotAuthenticated:
		return http.StatusUnauthorized
	case CodeBanned, CodeMuted, CodeMissingHubPermission, CodeMissingChannelPermission:
		return http.StatusForbidden
	case CodeNotAMember, CodeHubNotFound, CodeChannelNotFound, CodeMessageNotFound,
		CodeUserNotFound, CodeMemberNotFound:
		return http.StatusNotFound
	case CodeInvalidName, CodeInvalidText, CodeTooBig:
		return http.StatusBadRequest
	case CodeIndexError:
		// An unparseable query is the caller's fault; everything else in the
		// index is ours.
		if e.Kind == string(IndexParse) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
