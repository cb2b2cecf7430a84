package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSignalingApply marks a malformed or out-of-order description or
	// candidate. The message is dropped and the session kept.
	ErrSignalingApply = errors.New("signaling apply failed")

	// ErrConnectionTerminal marks a connection that failed, disconnected or
	// closed. Only the affected session is torn down.
	ErrConnectionTerminal = errors.New("connection terminal")

	// ErrNegotiation marks a local failure to produce a description.
	ErrNegotiation = errors.New("negotiation failed")

	// ErrRemoteRestarted marks a description from a peer that replaced its
	// connection. The local connection has to be replaced as well.
	ErrRemoteRestarted = errors.New("remote connection restarted")

	ErrRoomFull        = errors.New("room is full")
	ErrSignalingClosed = errors.New("signaling channel closed")
)

func applyError(peer, what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s from %s", ErrSignalingApply, what, peer)
	}
	return fmt.Errorf("%w: %s from %s: %v", ErrSignalingApply, what, peer, err)
}

func negotiationError(peer, op string, err error) error {
	return fmt.Errorf("%w: %s for %s: %v", ErrNegotiation, op, peer, err)
}
