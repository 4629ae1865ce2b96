package supervisor

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/shaiso/keygen/internal/telemetry"
)

// Состояния supervisor'а.
const (
	StateConnecting   = "connecting"
	StateDeclaring    = "declaring"
	StateConsuming    = "consuming"
	StateRetrying     = "retrying"
	StateShuttingDown = "shutting_down"
	StateFatal        = "fatal"
)

// События.
const (
	EventDeclare        = "declare"
	EventConsume        = "consume"
	EventConnectionLost = "connection_lost"
	EventReconnect      = "reconnect"
	EventInterrupt      = "interrupt"
	EventFail           = "fail"
)

var allStates = []string{
	StateConnecting,
	StateDeclaring,
	StateConsuming,
	StateRetrying,
	StateShuttingDown,
	StateFatal,
}

// active — состояния, из которых возможны interrupt и fail.
var active = []string{StateConnecting, StateDeclaring, StateConsuming, StateRetrying}

var events = fsm.Events{
	{Name: EventDeclare, Src: []string{StateConnecting}, Dst: StateDeclaring},
	{Name: EventConsume, Src: []string{StateDeclaring}, Dst: StateConsuming},
	{Name: EventConnectionLost, Src: []string{StateConnecting, StateDeclaring, StateConsuming}, Dst: StateRetrying},
	{Name: EventReconnect, Src: []string{StateRetrying}, Dst: StateConnecting},
	{Name: EventInterrupt, Src: active, Dst: StateShuttingDown},
	{Name: EventFail, Src: active, Dst: StateFatal},
}

// newMachine создаёт машину состояний в состоянии connecting.
// onEnter вызывается при каждом переходе.
func newMachine(onEnter func(from, to string)) *fsm.FSM {
	setStateGauge(StateConnecting)

	return fsm.NewFSM(StateConnecting, events, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			setStateGauge(e.Dst)
			if onEnter != nil {
				onEnter(e.Src, e.Dst)
			}
		},
	})
}

func setStateGauge(current string) {
	for _, state := range allStates {
		v := 0.0
		if state == current {
			v = 1
		}
		telemetry.SupervisorState.WithLabelValues(state).Set(v)
	}
}
