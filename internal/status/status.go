// Package status governs the message delivery lifecycle:
// sending → sent → delivered → seen, with failed reachable from sending
// or sent. No transition ever moves a message backward.
package status

import (
	"slices"

	"github.com/otaviocarvalho/chatsync/internal/model"
)

var validTransitions = map[model.MessageStatus][]model.MessageStatus{
	model.StatusSending:   {model.StatusSent, model.StatusDelivered, model.StatusSeen, model.StatusFailed},
	model.StatusSent:      {model.StatusDelivered, model.StatusSeen, model.StatusFailed},
	model.StatusDelivered: {model.StatusSeen},
	model.StatusSeen:      {},
	model.StatusFailed:    {model.StatusSending}, // resend reuses the client id
}

// CanTransition reports whether moving from one status to another is
// allowed.
func CanTransition(from, to model.MessageStatus) bool {
	return slices.Contains(validTransitions[from], to)
}

// Next resolves a requested transition. A request that would regress the
// lifecycle is ignored rather than applied: the current status is
// returned with applied=false.
func Next(current, requested model.MessageStatus) (next model.MessageStatus, applied bool) {
	if current == requested {
		return current, false
	}
	if !CanTransition(current, requested) {
		return current, false
	}
	return requested, true
}

// IsTerminalForward reports whether a status can never advance further.
func IsTerminalForward(s model.MessageStatus) bool {
	return s == model.StatusSeen
}
