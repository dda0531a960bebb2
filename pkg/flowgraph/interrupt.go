package flowgraph

import "errors"

// InterruptSignal is returned by an interrupt node to park the run until a
// human decision arrives. Create it with Interrupt.
type InterruptSignal struct {
	Prompt string
}

// Error implements the error interface.
func (s *InterruptSignal) Error() string {
	return "interrupt: " + s.Prompt
}

// Interrupt suspends the run at the current node with the given prompt.
// The node's update is discarded; the node runs again on Resume.
//
//	func review(ctx flowgraph.Context, s State) (Update, error) {
//	    d := ctx.Decision()
//	    if d == nil {
//	        return Update{}, flowgraph.Interrupt("approve the report?")
//	    }
//	    ...
//	}
func Interrupt(prompt string) error {
	return &InterruptSignal{Prompt: prompt}
}

// asInterrupt reports whether err is an interrupt signal.
func asInterrupt(err error) (*InterruptSignal, bool) {
	var sig *InterruptSignal
	if errors.As(err, &sig) {
		return sig, true
	}
	return nil, false
}
