package server

// signalLabels name each signal kind in recipient errors.
var signalLabels = map[string]string{
	EventOffer:        "offer",
	EventAnswer:       "answer",
	EventIceCandidate: "ICE candidate",
}

// forwardSignal relays an offer, answer or ICE candidate to sig.To. When the
// sender and recipient share a call the recipient's bound session gets it,
// otherwise its latest session. Signals are never queued or retried.
func (h *Hub) forwardSignal(s *Session, sig *Signal) error {
	if sig.To == "" {
		return invalidRecipient(signalLabels[sig.Kind])
	}
	if !h.registry.IsOnline(sig.To) {
		return ErrTargetOffline
	}

	from := h.sessionUser(s)
	dest := h.callSession(from, sig.To)
	if dest == "" {
		var ok bool
		if dest, ok = h.registry.LatestSession(sig.To); !ok {
			return ErrNoActiveSession
		}
	}

	if _, ok := h.sessions[dest]; !ok {
		return ErrNoActiveSession
	}

	h.sendToSession(dest, NewSignal(sig.Kind, sig.Payload, s.id, from))
	return nil
}

// callSession returns the live session to is bound to in its call with from.
func (h *Hub) callSession(from, to string) string {
	if from == "" {
		return ""
	}

	c, ok := h.calls.CallOf(from)
	if !ok || c.Peer(from) != to {
		return ""
	}

	bound := c.SessionOf(to)
	if bound == "" || !h.registry.HasSession(to, bound) {
		return ""
	}
	return bound
}
