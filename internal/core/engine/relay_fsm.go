package engine

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Relay invocation states. Untyped so they convert to statekit.StateID.
const (
	StateReceived        = "received"
	StateAdmitting       = "admitting"
	StateRejected        = "rejected"
	StateAdmitted        = "admitted"
	StateQuerying        = "querying"
	StateSucceeded       = "succeeded"
	StateFailed          = "failed"
	StateRepliedQuota    = "replied_quota"
	StateRepliedAnswer   = "replied_answer"
	StateRepliedFallback = "replied_fallback"
)

// Relay invocation events.
const (
	eventCheck   = "check"
	eventReject  = "reject"
	eventAdmit   = "admit"
	eventQuery   = "query"
	eventSucceed = "succeed"
	eventFail    = "fail"
	eventReply   = "reply"
)

type transition struct {
	event  string
	target string
}

// relayTransitions is the complete transition table; states absent as keys are terminal.
var relayTransitions = map[string][]transition{
	StateReceived:  {{eventCheck, StateAdmitting}},
	StateAdmitting: {{eventReject, StateRejected}, {eventAdmit, StateAdmitted}, {eventFail, StateFailed}},
	StateRejected:  {{eventReply, StateRepliedQuota}},
	StateAdmitted:  {{eventQuery, StateQuerying}},
	StateQuerying:  {{eventSucceed, StateSucceeded}, {eventFail, StateFailed}},
	StateSucceeded: {{eventReply, StateRepliedAnswer}},
	StateFailed:    {{eventReply, StateRepliedFallback}},
}

// IsTerminalState reports whether state ends a relay invocation.
func IsTerminalState(state string) bool {
	switch state {
	case StateRepliedQuota, StateRepliedAnswer, StateRepliedFallback:
		return true
	}
	return false
}

type relayContext struct{}

// invocation tracks one Handle call through the relay state machine.
type invocation struct {
	interpreter *statekit.Interpreter[relayContext]
	current     string
}

func newInvocation() *invocation {
	inv := &invocation{current: StateReceived}

	builder := statekit.NewMachine[relayContext]("relay-invocation").
		WithInitial(statekit.StateID(StateReceived)).
		WithContext(relayContext{})

	builder.State(StateReceived).
		On(eventCheck).Target(StateAdmitting).
		Done()

	builder.State(StateAdmitting).
		On(eventReject).Target(StateRejected).
		On(eventAdmit).Target(StateAdmitted).
		On(eventFail).Target(StateFailed).
		Done()

	builder.State(StateRejected).
		On(eventReply).Target(StateRepliedQuota).
		Done()

	builder.State(StateAdmitted).
		On(eventQuery).Target(StateQuerying).
		Done()

	builder.State(StateQuerying).
		On(eventSucceed).Target(StateSucceeded).
		On(eventFail).Target(StateFailed).
		Done()

	builder.State(StateSucceeded).
		On(eventReply).Target(StateRepliedAnswer).
		Done()

	builder.State(StateFailed).
		On(eventReply).Target(StateRepliedFallback).
		Done()

	// terminal states absorb a repeated reply; the table rejects it before it gets here
	builder.State(StateRepliedQuota).
		On(eventReply).Target(StateRepliedQuota).
		Done()
	builder.State(StateRepliedAnswer).
		On(eventReply).Target(StateRepliedAnswer).
		Done()
	builder.State(StateRepliedFallback).
		On(eventReply).Target(StateRepliedFallback).
		Done()

	machine, err := builder.Build()
	if err != nil {
		// the table alone still drives the invocation
		return inv
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	inv.interpreter = interpreter
	return inv
}

// fire applies event, returning an error when it is not valid in the current state.
func (i *invocation) fire(event string) error {
	next := ""
	for _, tr := range relayTransitions[i.current] {
		if tr.event == event {
			next = tr.target
			break
		}
	}
	if next == "" {
		return fmt.Errorf("relay event %q is not allowed in state %q", event, i.current)
	}

	if i.interpreter != nil {
		i.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
		if got := string(i.interpreter.State().Value); got != next {
			return fmt.Errorf("relay state machine moved to %q, expected %q", got, next)
		}
	}
	i.current = next
	return nil
}

func (i *invocation) state() string {
	return i.current
}
