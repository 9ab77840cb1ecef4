// Package model defines the conversation types exchanged with the inference
// endpoint and the client contract the iteration controller consumes.
package model

import (
	"context"
	"errors"
	"fmt"
)

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single role-tagged message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client sends a conversation to an inference endpoint and returns the
// assistant's reply. Implementations must not retry on their own.
type Client interface {
	Send(ctx context.Context, turns []Turn) (string, error)
}

// ErrorKind classifies a failed model call.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindTimeout   ErrorKind = "timeout"
	KindMalformed ErrorKind = "malformed_response"
)

// Error is returned by Client implementations for any unsuccessful call.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("model %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNoChoices is wrapped in a KindMalformed error when the endpoint answers
// without any choice or with an empty message body.
var ErrNoChoices = errors.New("response contained no message")

// KindOf reports the kind of a model error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}
