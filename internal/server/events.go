package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/npezzotti/go-callhub/internal/types"
)

// inbound
const (
	EventUserOnline         = "user-online"
	EventAddChatMessage     = "add-chat-message"
	EventUserLogout         = "user-logout"
	EventCallRequest        = "video-call-request"
	EventInvitationResponse = "video-call-invitation-response"
	EventOffer              = "offer"
	EventAnswer             = "answer"
	EventIceCandidate       = "ice-candidate"
	EventLeaveCall          = "leave-call"
)

// outbound
const (
	EventUpdateOnlineUsers        = "update-online-users"
	EventAddChatMessageSuccess    = "add-chat-message-success"
	EventErrorNotification        = "error-notification"
	EventCallInvitation           = "video-call-invitation"
	EventInvitationRemoteResponse = "video-call-invitation-remote-response"
)

const (
	ActionAllow   = "allow"
	ActionDeny    = "deny"
	ActionTimeout = "timeout"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is a decoded inbound frame. Exactly one payload field is set.
type ClientEvent struct {
	Name               string
	UserOnline         *UserOnline
	UserLogout         *UserLogout
	ChatMessage        *ChatSubmission
	CallRequest        *CallRequest
	InvitationResponse *InvitationResponse
	Signal             *Signal
	LeaveCall          *LeaveCall
	session            *Session
}

type UserOnline struct {
	UserId string `json:"userId"`
}

type UserLogout struct {
	UserId string `json:"userId"`
}

type ChatSubmission struct {
	Message     string `json:"message,omitempty"`
	Image       string `json:"image,omitempty"`
	Video       string `json:"video,omitempty"`
	Pdf         string `json:"pdf,omitempty"`
	UserId      string `json:"userId"`
	RecipientId string `json:"recipientId"`
}

type CallRequest struct {
	To       string `json:"to"`
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

type InvitationResponse struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Action string `json:"action"`
}

// Signal is an offer, answer or ICE candidate. Payload is never inspected.
type Signal struct {
	Kind    string
	To      string
	Payload json.RawMessage
}

type signalData struct {
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	To        string          `json:"to,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	From      string          `json:"from,omitempty"`
}

type LeaveCall struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func decodeEvent(raw []byte) (*ClientEvent, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}

	ev := &ClientEvent{Name: f.Event}

	var target any
	switch f.Event {
	case EventUserOnline:
		ev.UserOnline = &UserOnline{}
		target = ev.UserOnline
	case EventUserLogout:
		ev.UserLogout = &UserLogout{}
		target = ev.UserLogout
	case EventAddChatMessage:
		ev.ChatMessage = &ChatSubmission{}
		target = ev.ChatMessage
	case EventCallRequest:
		ev.CallRequest = &CallRequest{}
		target = ev.CallRequest
	case EventInvitationResponse:
		ev.InvitationResponse = &InvitationResponse{}
		target = ev.InvitationResponse
	case EventLeaveCall:
		ev.LeaveCall = &LeaveCall{}
		target = ev.LeaveCall
	case EventOffer, EventAnswer, EventIceCandidate:
		var sd signalData
		if err := json.Unmarshal(f.Data, &sd); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", f.Event, err)
		}
		ev.Signal = &Signal{Kind: f.Event, To: sd.To}
		switch f.Event {
		case EventOffer:
			ev.Signal.Payload = sd.Offer
		case EventAnswer:
			ev.Signal.Payload = sd.Answer
		default:
			ev.Signal.Payload = sd.Candidate
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event %q", f.Event)
	}

	if err := json.Unmarshal(f.Data, target); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", f.Event, err)
	}

	return ev, nil
}

// ServerEvent is an outbound frame before serialization.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type ErrorNotification struct {
	Message string `json:"message"`
}

type ChatMessageSuccess struct {
	RecipientId string            `json:"recipientId"`
	Data        types.ChatMessage `json:"data"`
}

type CallInvitation struct {
	From     string `json:"from"`
	Username string `json:"username"`
	CallId   string `json:"callId"`
}

type InvitationRemoteResponse struct {
	Action string `json:"action"`
	From   string `json:"from"`
	CallId string `json:"callId,omitempty"`
}

func NewErrorNotification(err error) *ServerEvent {
	return &ServerEvent{
		Event: EventErrorNotification,
		Data:  ErrorNotification{Message: notificationMessage(err)},
	}
}

func NewOnlineUsers(userIds []string) *ServerEvent {
	if userIds == nil {
		userIds = []string{}
	}
	return &ServerEvent{Event: EventUpdateOnlineUsers, Data: userIds}
}

func NewChatMessageSuccess(recipientId string, msg types.ChatMessage) *ServerEvent {
	return &ServerEvent{
		Event: EventAddChatMessageSuccess,
		Data:  ChatMessageSuccess{RecipientId: recipientId, Data: msg},
	}
}

func NewCallInvitation(from, username, callId string) *ServerEvent {
	return &ServerEvent{
		Event: EventCallInvitation,
		Data:  CallInvitation{From: from, Username: username, CallId: callId},
	}
}

func NewInvitationRemoteResponse(action, from, callId string) *ServerEvent {
	return &ServerEvent{
		Event: EventInvitationRemoteResponse,
		Data:  InvitationRemoteResponse{Action: action, From: from, CallId: callId},
	}
}

// NewSignal re-emits a relayed payload under its original key, tagged with
// the sending session and user.
func NewSignal(kind string, payload json.RawMessage, senderSession, fromUser string) *ServerEvent {
	sd := signalData{Sender: senderSession, From: fromUser}
	switch kind {
	case EventOffer:
		sd.Offer = payload
	case EventAnswer:
		sd.Answer = payload
	case EventIceCandidate:
		sd.Candidate = payload
	}

	return &ServerEvent{Event: kind, Data: sd}
}

func NewLeaveCall() *ServerEvent {
	return &ServerEvent{Event: EventLeaveCall}
}

func serializeEvent(ev *ServerEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
