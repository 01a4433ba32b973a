package route

import "github.com/voxduct/voxduct/pkg/agent"

// Observer receives controller events. Implementations must not block and
// must not call back into the Controller: OnStateChange runs while the
// controller holds its transition lock, and OnTranscript runs on the
// transcript-pump goroutine where a slow observer delays delivery.
type Observer interface {
	// OnStateChange is called under the controller's transition lock after
	// every state transition. reason is non-empty only for StateFailed.
	OnStateChange(s State, reason string)

	// OnTranscript is called for every transcript entry from the agent.
	OnTranscript(t agent.Transcript)
}

// NopObserver is an Observer that ignores all events.
type NopObserver struct{}

// OnStateChange implements Observer.
func (NopObserver) OnStateChange(State, string) {}

// OnTranscript implements Observer.
func (NopObserver) OnTranscript(agent.Transcript) {}

var _ Observer = NopObserver{}
