package server

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindConflict
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	}
	return "unknown"
}

// Error is a failed client action. Message is what the originating session
// is shown; Err is the cause, which is only logged.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind and message, so a wrapped copy
// still matches its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == e.Message
}

var (
	ErrInvalidEvent        = &Error{Kind: KindValidation, Message: "Invalid event format."}
	ErrUnauthorized        = &Error{Kind: KindValidation, Message: "You are not allowed to act as this user."}
	ErrMissingUserId       = &Error{Kind: KindValidation, Message: "User ID is required."}
	ErrEmptyMessage        = &Error{Kind: KindValidation, Message: "Message must contain text, image, video or pdf."}
	ErrMissingParticipants = &Error{Kind: KindValidation, Message: "User ID and Recipient ID are required."}
	ErrNotParticipant      = &Error{Kind: KindValidation, Message: "You are not a member of this conversation."}
	ErrSelfCall            = &Error{Kind: KindValidation, Message: "You cannot call yourself."}
	ErrMissingCallParties  = &Error{Kind: KindValidation, Message: "Caller and callee are required."}
	ErrNotInCallWith       = &Error{Kind: KindValidation, Message: "You are not in a call with this user."}

	ErrTargetOffline       = &Error{Kind: KindNotFound, Message: "User is offline at the moment."}
	ErrTargetUnavailable   = &Error{Kind: KindNotFound, Message: "User is no longer available to receive your response."}
	ErrNoActiveSession     = &Error{Kind: KindNotFound, Message: "No active connection found for the user."}
	ErrUnknownSender       = &Error{Kind: KindNotFound, Message: "Sender not found."}
	ErrUnknownConversation = &Error{Kind: KindNotFound, Message: "Recipient not found."}
	ErrInvitationNotFound  = &Error{Kind: KindNotFound, Message: "This call invitation is no longer available."}

	ErrAlreadyInCall = &Error{Kind: KindConflict, Message: "User is already in another call."}

	ErrAttachmentUploadFailed = &Error{Kind: KindUpstream, Message: "Failed to upload attachment. Try again."}
	ErrPersistFailed          = &Error{Kind: KindUpstream, Message: "Something went wrong, can't send message. Try again."}
	ErrServiceUnavailable     = &Error{Kind: KindUpstream, Message: "Service unavailable. Try again."}
)

func wrapError(base *Error, err error) *Error {
	return &Error{Kind: base.Kind, Message: base.Message, Err: err}
}

func invalidRecipient(signal string) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf("Invalid recipient for %s.", signal)}
}

// notificationMessage is the text shown to the client for err.
func notificationMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Something went wrong. Try again."
}
