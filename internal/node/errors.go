package node

import "errors"

// These are the exact user-visible error strings spec.md §7 names as
// part of the wire contract; they flow into transport.ErrorResponse
// verbatim, never wrapped with Go error-chain context.
var (
	ErrAlreadySubscribed     = errors.New("Already subscribed.")
	ErrNotSubscribed         = errors.New("Not subscribed.")
	ErrCannotSubscribeSelf   = errors.New("Cannot subscribe to self.")
	ErrCannotUnsubscribeSelf = errors.New("Cannot unsubscribe from self.")
	ErrPostNotFound          = errors.New("Post not found.")
	ErrNotLocallyAvailable   = errors.New("Not locally available.")
	ErrNoAvailableSource     = errors.New("No available source found.")
	ErrCouldNotPostMessage   = errors.New("Could not post message.")
	ErrCouldNotSubscribe     = errors.New("Could not subscribe.")
	ErrCouldNotUnsubscribe   = errors.New("Could not unsubscribe.")
)
