package core

import "errors"

// Error codes for domain errors. They travel to clients in protocol error
// frames and stay stable across releases.
const (
	ErrCodeDuplicateIdentity   = "duplicate_identity"
	ErrCodeUnknownClient       = "unknown_client"
	ErrCodeUnknownRoom         = "unknown_room"
	ErrCodeUnknownParent       = "unknown_parent"
	ErrCodeUnknownChannel      = "unknown_channel"
	ErrCodeNameCollision       = "name_collision"
	ErrCodeInvalidArgument     = "invalid_argument"
	ErrCodeInvalidState        = "invalid_state"
	ErrCodeNotAMember          = "not_a_member"
	ErrCodeIncompatibleOptions = "incompatible_options"
	ErrCodeConfiguration       = "configuration_error"
	ErrCodeIdentityGeneration  = "identity_generation"
	ErrCodeRoomLimit           = "room_limit"
	ErrCodeRouting             = "routing_error"
	ErrCodeInternal            = "internal_error"
)

// CoreError is a domain error with a stable code. The sentinels below are the
// only instances; errors.Is matches them through wrap chains by identity.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

var (
	ErrDuplicateIdentity   = &CoreError{ErrCodeDuplicateIdentity, "identity already registered"}
	ErrUnknownClient       = &CoreError{ErrCodeUnknownClient, "unknown client"}
	ErrUnknownRoom         = &CoreError{ErrCodeUnknownRoom, "unknown room"}
	ErrUnknownParent       = &CoreError{ErrCodeUnknownParent, "unknown parent room"}
	ErrUnknownChannel      = &CoreError{ErrCodeUnknownChannel, "unknown channel"}
	ErrNameCollision       = &CoreError{ErrCodeNameCollision, "room name already taken"}
	ErrInvalidArgument     = &CoreError{ErrCodeInvalidArgument, "invalid argument"}
	ErrInvalidState        = &CoreError{ErrCodeInvalidState, "invalid state"}
	ErrNotAMember          = &CoreError{ErrCodeNotAMember, "client is not a member of the room"}
	ErrIncompatibleOptions = &CoreError{ErrCodeIncompatibleOptions, "incompatible options"}
	ErrConfiguration       = &CoreError{ErrCodeConfiguration, "configuration error"}
	ErrIdentityGeneration  = &CoreError{ErrCodeIdentityGeneration, "could not generate a unique id"}
	ErrRoomLimit           = &CoreError{ErrCodeRoomLimit, "room limit reached"}
	ErrRouting             = &CoreError{ErrCodeRouting, "routing error"}
)

// ErrorCode extracts the stable code from an error chain.
func ErrorCode(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}
