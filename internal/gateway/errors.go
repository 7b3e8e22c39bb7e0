package gateway

import (
	"errors"

	"github.com/hubline-chat/hubline-server/internal/hub"
	"github.com/hubline-chat/hubline-server/internal/index"
	"github.com/hubline-chat/hubline-server/internal/message"
	"github.com/hubline-chat/hubline-server/internal/protocol"
	"github.com/hubline-chat/hubline-server/internal/user"
)

// WireError maps internal sentinel errors to the structured wire error. An
// error that is already a wire error passes through unchanged.
func WireError(err error) *protocol.Error {
	var wire *protocol.Error
	if errors.As(err, &wire) {
		return wire
	}

	switch {
	case errors.Is(err, hub.ErrNotFound):
		return protocol.NewError(protocol.CodeHubNotFound)
	case errors.Is(err, hub.ErrChannelNotFound):
		return protocol.NewError(protocol.CodeChannelNotFound)
	case errors.Is(err, hub.ErrNotAMember), errors.Is(err, hub.ErrAlreadyMember):
		return protocol.NewError(protocol.CodeNotAMember)
	case errors.Is(err, hub.ErrBanned):
		return protocol.NewError(protocol.CodeBanned)
	case errors.Is(err, hub.ErrMuted):
		return protocol.NewError(protocol.CodeMuted)
	case errors.Is(err, hub.ErrInvalidName):
		return protocol.NewError(protocol.CodeInvalidName)
	case errors.Is(err, hub.ErrNotBanned):
		return protocol.NewError(protocol.CodeMemberNotFound)
	case errors.Is(err, hub.ErrOwnerImmutable):
		// No amount of granted permissions reaches over the owner.
		return protocol.NewError(protocol.CodeMissingHubPermission)
	case errors.Is(err, user.ErrNotFound):
		return protocol.NewError(protocol.CodeUserNotFound)
	case errors.Is(err, message.ErrNotFound):
		return protocol.NewError(protocol.CodeMessageNotFound)
	case errors.Is(err, message.ErrTooBig):
		return protocol.NewError(protocol.CodeTooBig)
	case errors.Is(err, message.ErrInvalidText):
		return protocol.NewError(protocol.CodeInvalidText)
	case errors.Is(err, index.ErrParseQuery):
		return protocol.IndexError(protocol.IndexParse)
	case errors.Is(err, index.ErrClosed):
		return protocol.IndexError(protocol.IndexWriter)
	default:
		return protocol.NewError(protocol.CodeInternal)
	}
}
