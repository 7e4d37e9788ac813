package app

import (
	"errors"

	"github.com/pscheid92/livechat/internal/domain"
)

var successMessages = map[domain.EventName]string{
	domain.EventStartBroadcast: "Broadcasting started",
	domain.EventStopBroadcast:  "Broadcasting stopped",
	domain.EventChatMessage:    "Message sent",
}

// AckFor builds the reply for an inbound event given the handler's result.
func AckFor(event domain.EventName, err error) domain.AckReply {
	if err == nil {
		msg, ok := successMessages[event]
		if !ok {
			msg = "OK"
		}
		return domain.AckReply{Success: true, Message: msg}
	}

	var msg string
	switch {
	case errors.Is(err, domain.ErrStreamBusy):
		msg = "Someone else is already broadcasting"
	case errors.Is(err, domain.ErrNotStreamer):
		msg = "You are not currently broadcasting"
	case errors.Is(err, domain.ErrRateLimited):
		msg = "You are sending messages too quickly"
	case errors.Is(err, domain.ErrSessionNotFound):
		msg = "Target session not found"
	case errors.Is(err, domain.ErrUnknownEvent), errors.Is(err, domain.ErrInvalidPayload):
		msg = err.Error()
	default:
		msg = "Internal error"
	}
	return domain.AckReply{Success: false, Message: msg}
}
