package service

import "errors"

var (
	// ErrTripNotFound indicates the trip does not exist or belongs to another user.
	ErrTripNotFound = errors.New("trip not found")
	// ErrInvalidTripDates indicates a trip whose start is after its end.
	ErrInvalidTripDates = errors.New("trip start must not be after its end")
	// ErrChatRoomNotFound indicates the requested room does not exist.
	ErrChatRoomNotFound = errors.New("chat room not found")
	// ErrChatNotMember indicates the acting user is not a member of the room.
	ErrChatNotMember = errors.New("user is not a member of this chat room")
	// ErrChatForbidden indicates a membership change the actor may not perform.
	ErrChatForbidden = errors.New("chat room change not permitted")
	// ErrChatActorRequired indicates neither a user id nor an email was supplied.
	ErrChatActorRequired = errors.New("user identity required")
	// ErrChatEmptyMessage indicates the message had no content after sanitization.
	ErrChatEmptyMessage = errors.New("message content empty after sanitization")
	// ErrChatConflict indicates a membership change kept racing other writers.
	ErrChatConflict = errors.New("chat room changed concurrently, retry")
	// ErrChatUnavailable indicates the remote chat store could not be reached and no cached copy exists.
	ErrChatUnavailable = errors.New("chat service temporarily unavailable")
)
