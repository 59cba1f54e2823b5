package guard

// DiagnosticsSink receives a best-effort signal when a guard trips. It is
// called synchronously from ShouldPreventRequest, so implementations should
// bound their own latency and must swallow their own failures.
type DiagnosticsSink interface {
	LoopDetected(state State)
}

// NopSink discards every signal.
type NopSink struct{}

func (NopSink) LoopDetected(State) {}

// SinkFunc adapts a function to DiagnosticsSink.
type SinkFunc func(State)

func (f SinkFunc) LoopDetected(s State) { f(s) }

// MultiSink fans a signal out to several sinks in order.
type MultiSink []DiagnosticsSink

func (m MultiSink) LoopDetected(s State) {
	for _, sink := range m {
		if sink != nil {
			sink.LoopDetected(s)
		}
	}
}
