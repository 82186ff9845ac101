package client

import "fmt"

type state int

const (
	stateStart state = iota
	stateRequestingAccess
	stateSubscribing
	stateReady
	stateTerminated
)

var stateNames = [...]string{"start", "requesting_access", "subscribing", "ready", "terminated"}

func (s state) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type event int

const (
	eventNone event = iota
	eventInitialize
	eventChallenge
	eventAccepted
	eventOK
	eventFinished
	eventChunk
	eventHeartbeatMsg
	eventHeartbeatAck
	eventSubscribeAck
	eventSendCredit
	eventDenied
	eventProtocolError
	eventExpired
	eventHeartbeat
	// eventUnexpected stands for any message a client never receives.
	eventUnexpected
)

var eventNames = [...]string{
	"none", "initialize", "challenge", "accepted", "ok", "finished", "chunk",
	"heartbeat_msg", "heartbeat_ack", "subscribe_ack", "send_credit",
	"denied", "protocol_error", "expired", "heartbeat", "unexpected",
}

func (e event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

type action func(c *Client)

const stay state = -1

type transition struct {
	actions []action
	next    state
}

var transitions = map[state]map[event]transition{
	stateStart: {
		eventInitialize: {[]action{(*Client).sendHello}, stateRequestingAccess},
	},
	stateRequestingAccess: {
		eventChallenge: {[]action{(*Client).sendCredentials}, stay},
		eventAccepted:  {[]action{(*Client).markConnected, (*Client).firstSubscription}, stateSubscribing},
	},
	stateSubscribing: {
		eventOK:       {[]action{(*Client).sendSubscribe, (*Client).nextSubscription}, stay},
		eventFinished: {[]action{(*Client).refillCredit}, stateReady},
	},
	stateReady: {
		eventChunk:      {[]action{(*Client).applyChunk, (*Client).refillCredit}, stay},
		eventSendCredit: {[]action{(*Client).refillCredit}, stay},
		eventHeartbeat:  {[]action{(*Client).sendHeartbeat}, stay},
	},
}

// anyState applies in every state that has no entry of its own.
var anyState = map[event]transition{
	eventHeartbeatMsg:  {[]action{(*Client).sendHeartbeatAck}, stay},
	eventHeartbeatAck:  {nil, stay},
	eventSubscribeAck:  {nil, stay},
	eventHeartbeat:     {nil, stay},
	eventDenied:        {[]action{(*Client).logDenied}, stateTerminated},
	eventProtocolError: {[]action{(*Client).logProtocolError}, stateTerminated},
	eventExpired:       {[]action{(*Client).restart, (*Client).reconnect}, stay},
}

func lookup(st state, ev event) (transition, bool) {
	if t, ok := transitions[st][ev]; ok {
		return t, true
	}
	t, ok := anyState[ev]
	return t, ok
}

// execute feeds ev to the dialog and follows raised events until it
// settles. Unexpected events are logged and dropped.
func (c *Client) execute(ev event) {
	defer func() {
		if r := recover(); r != nil {
			c.logf("internal error handling %s: %v", ev, r)
			c.closeFile()
			c.hangUp()
			c.state = stateTerminated
		}
	}()

	for ev != eventNone {
		t, ok := lookup(c.state, ev)
		if !ok {
			c.logf("unexpected %s in state %s", ev, c.state)
			return
		}

		c.next = eventNone
		for _, act := range t.actions {
			act(c)
		}
		if t.next != stay {
			c.state = t.next
		}
		ev = c.next
	}
}
