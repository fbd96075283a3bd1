package notify

import "PulseTrader/logger"

// Kind tags an alert event.
type Kind string

const (
	KindTradeEntry       Kind = "trade_entry"
	KindTradeExit        Kind = "trade_exit"
	KindCrisisLevelChange Kind = "crisis_level_change"
	KindKillSwitch       Kind = "kill_switch"
)

// AlertEvent is what the core emits; transports live outside the core.
type AlertEvent struct {
	Kind    Kind                   `json:"kind"`
	Message string                 `json:"message"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Sink receives alert events. Send must be non-blocking best-effort; the
// core never waits on a transport.
type Sink interface {
	Send(event AlertEvent)
}

// LogSink is the default sink: alerts go to the process log only.
type LogSink struct{}

func (LogSink) Send(event AlertEvent) {
	logger.Infof("🔔 [%s] %s", event.Kind, event.Message)
}

// FanoutSink forwards to multiple sinks.
type FanoutSink []Sink

func (f FanoutSink) Send(event AlertEvent) {
	for _, s := range f {
		s.Send(event)
	}
}
