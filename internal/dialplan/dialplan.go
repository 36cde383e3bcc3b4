// Package dialplan maps PBX dial-plan codes to the physical actions they
// request.
package dialplan

// Action is what a dial-plan code asks the bridge to do.
type Action string

const (
	ActionOpenDoor Action = "open_door"
	ActionOpenGate Action = "open_gate"
	ActionSendSMS  Action = "send_sms"
)

// Valid reports whether the action is one of the known kinds.
func (a Action) Valid() bool {
	switch a {
	case ActionOpenDoor, ActionOpenGate, ActionSendSMS:
		return true
	}
	return false
}

// Relay reports whether the action is performed by a callback at a relay
// number and therefore produces a trackable pending record.
func (a Action) Relay() bool {
	return a == ActionOpenDoor || a == ActionOpenGate
}

// Kind is the action classification recorded on pending records and in
// notifications. The names are the ones the operators know.
func (a Action) Kind() string {
	switch a {
	case ActionOpenDoor:
		return "hvirtka"
	case ActionOpenGate:
		return "vorota"
	case ActionSendSMS:
		return "sms"
	}
	return string(a)
}

// Entry is one configured dial-plan code.
type Entry struct {
	Name   string `yaml:"name"`
	Action Action `yaml:"action"`
	Target string `yaml:"target"`
}

// Table maps dial-plan codes (the PBX "internal" number) to entries.
type Table map[string]Entry

// Lookup returns the entry for a dial-plan code.
func (t Table) Lookup(code string) (Entry, bool) {
	e, ok := t[code]
	return e, ok
}
