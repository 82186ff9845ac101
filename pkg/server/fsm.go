package server

import "fmt"

type state int

const (
	stateStart state = iota
	stateChecking
	stateChallenging
	stateReady
	stateDispatching
)

var stateNames = [...]string{"start", "checking", "challenging", "ready", "dispatching"}

func (s state) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type event int

const (
	eventNone event = iota
	eventHello
	eventResponse
	eventSubscribe
	eventCredit
	eventHeartbeatMsg
	eventHeartbeatAck
	eventClose
	eventHeartbeat
	eventExpired
	eventDispatch
	eventFriend
	eventFoe
	eventMaybe
	eventSendChunk
	eventSendDelete
	eventNextPatch
	eventNoCredit
	eventFinished
	eventBusy
	// eventUnexpected stands for any message a server never receives; it
	// has no transitions.
	eventUnexpected
)

var eventNames = [...]string{
	"none", "hello", "response", "subscribe", "credit", "heartbeat_msg",
	"heartbeat_ack", "close", "heartbeat", "expired", "dispatch", "friend",
	"foe", "maybe", "send_chunk", "send_delete", "next_patch", "no_credit",
	"finished", "busy", "unexpected",
}

func (e event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

type action func(s *Server, c *client)

// stay keeps the current state.
const stay state = -1

type transition struct {
	actions []action
	next    state
}

// transitions is the server dialog. A (state, event) pair missing here and
// from anyState is a protocol violation.
var transitions = map[state]map[event]transition{
	stateStart: {
		eventHello: {[]action{(*Server).negotiate}, stateChecking},
	},
	stateChecking: {
		eventFriend: {[]action{(*Server).sendAccepted}, stateReady},
		eventFoe:    {[]action{(*Server).sendDenied, (*Server).terminateDenied}, stay},
		eventMaybe:  {[]action{(*Server).sendChallenge}, stateChallenging},
	},
	stateChallenging: {
		eventResponse: {[]action{(*Server).negotiateResponse}, stateChecking},
	},
	stateReady: {
		eventSubscribe: {[]action{(*Server).storeSubscription, (*Server).sendSubscribeAck}, stay},
		eventCredit:    {[]action{(*Server).addCredit, (*Server).nextPatch}, stateDispatching},
		eventDispatch:  {[]action{(*Server).nextPatch}, stateDispatching},
		eventClose:     {[]action{(*Server).terminateClosed}, stay},
	},
	stateDispatching: {
		eventSendChunk:  {[]action{(*Server).sendChunk, (*Server).nextPatch}, stay},
		eventSendDelete: {[]action{(*Server).sendChunk, (*Server).nextPatch}, stay},
		eventNextPatch:  {[]action{(*Server).nextPatch}, stay},
		eventNoCredit:   {nil, stateReady},
		eventFinished:   {nil, stateReady},
		eventBusy:       {nil, stateReady},
	},
}

// anyState applies in every state that has no entry of its own.
var anyState = map[event]transition{
	eventHello:        {[]action{(*Server).negotiate}, stateChecking},
	eventHeartbeatMsg: {[]action{(*Server).sendHeartbeatAck}, stay},
	eventHeartbeatAck: {nil, stay},
	eventHeartbeat:    {[]action{(*Server).sendHeartbeat}, stay},
	eventExpired:      {[]action{(*Server).terminateExpired}, stay},
	eventDispatch:     {nil, stay},
}

func lookup(st state, ev event) (transition, bool) {
	if t, ok := transitions[st][ev]; ok {
		return t, true
	}
	t, ok := anyState[ev]
	return t, ok
}

// execute feeds ev to c and follows every event the actions raise until
// the dialog settles or the client is terminated.
func (s *Server) execute(c *client, ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.violation(c, fmt.Sprintf("internal error handling %s: %v", ev, r))
		}
	}()

	for ev != eventNone && !c.terminated {
		t, ok := lookup(c.state, ev)
		if !ok {
			s.violation(c, fmt.Sprintf("unexpected %s in state %s", ev, c.state))
			return
		}

		c.next = eventNone
		for _, act := range t.actions {
			act(s, c)
			if c.terminated {
				return
			}
		}
		if t.next != stay {
			c.state = t.next
		}
		ev = c.next
	}
}
