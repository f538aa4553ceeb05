package events

import "encoding/json"

// Event names carried in the "event" field of stream messages.
const (
	EventCreated         = "created"
	EventNotificationsOK = "notifications_ok"
	EventCompleted       = "completed"
	EventFailed          = "failed"
)

// Message is the JSON envelope published on an operation's event stream.
type Message struct {
	Event  string `json:"event"`
	Reason string `json:"reason,omitempty"`
}

func marshal(m Message) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		// Message contains only strings; this cannot fail.
		panic(err)
	}
	return data
}

// Created is published when the operation record is inserted.
func Created() []byte {
	return marshal(Message{Event: EventCreated})
}

// NotificationsOK is published once all must-succeed subscribers have
// acknowledged.
func NotificationsOK() []byte {
	return marshal(Message{Event: EventNotificationsOK})
}

// Completed is published when the pool mutation committed.
func Completed() []byte {
	return marshal(Message{Event: EventCompleted})
}

// Failed is published on any terminal failure, with the reason.
func Failed(reason string) []byte {
	return marshal(Message{Event: EventFailed, Reason: reason})
}
