package stagecontrol

// bootstrapState is the 4-state latch spec §4.6 uses in place of a bare
// 2-count gate: it records which of the two bootstrap preconditions
// (validator acceptance, agent connection) have landed, so the gate opens
// exactly once regardless of arrival order.
type bootstrapState int

const (
	bootstrapNone bootstrapState = iota
	bootstrapOnlyValidator
	bootstrapOnlyAgent
	bootstrapBoth
)

type bootstrapEvent int

const (
	eventValidatorAccepted bootstrapEvent = iota
	eventAgentConnected
)

// nextBootstrapState is the latch's pure transition table, split out so the
// four-state logic can be tested without a Controller.
func nextBootstrapState(current bootstrapState, ev bootstrapEvent) bootstrapState {
	switch current {
	case bootstrapNone:
		if ev == eventValidatorAccepted {
			return bootstrapOnlyValidator
		}
		return bootstrapOnlyAgent
	case bootstrapOnlyValidator:
		if ev == eventAgentConnected {
			return bootstrapBoth
		}
	case bootstrapOnlyAgent:
		if ev == eventValidatorAccepted {
			return bootstrapBoth
		}
	}
	return current
}

// advanceBootstrapGate folds ev into the latch and fires onBootstrapGateOpen
// exactly once, the first time both preconditions are satisfied regardless
// of which one lands second.
func (c *Controller) advanceBootstrapGate(ev bootstrapEvent) {
	c.mu.Lock()
	c.bootstrap = nextBootstrapState(c.bootstrap, ev)
	fire := c.bootstrap == bootstrapBoth && !c.bootstrapFired
	if fire {
		c.bootstrapFired = true
	}
	c.mu.Unlock()

	if fire {
		c.onBootstrapGateOpen()
	}
}
