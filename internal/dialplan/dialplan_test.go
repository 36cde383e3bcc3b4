package dialplan_test

import (
	"testing"

	"github.com/gomoncli/zadarma-bridge/internal/dialplan"
)

func TestLookup(t *testing.T) {
	table := dialplan.Table{
		"202": {Name: "IVR Ворота", Action: dialplan.ActionOpenGate, Target: "0930063585"},
		"201": {Name: "IVR Хвіртка", Action: dialplan.ActionOpenDoor, Target: "0637442017"},
		"203": {Name: "IVR SMS", Action: dialplan.ActionSendSMS},
	}

	entry, ok := table.Lookup("202")
	if !ok {
		t.Fatal("expected entry for 202")
	}
	if entry.Action != dialplan.ActionOpenGate {
		t.Errorf("expected open_gate, got %s", entry.Action)
	}
	if entry.Target != "0930063585" {
		t.Errorf("expected target=0930063585, got %s", entry.Target)
	}

	if _, ok := table.Lookup("999"); ok {
		t.Error("expected no entry for unknown code")
	}
}

func TestActionKind(t *testing.T) {
	tests := []struct {
		action dialplan.Action
		kind   string
	}{
		{dialplan.ActionOpenGate, "vorota"},
		{dialplan.ActionOpenDoor, "hvirtka"},
		{dialplan.ActionSendSMS, "sms"},
	}
	for _, tt := range tests {
		if got := tt.action.Kind(); got != tt.kind {
			t.Errorf("Kind(%s) = %s, want %s", tt.action, got, tt.kind)
		}
	}
}

func TestActionValid(t *testing.T) {
	if !dialplan.ActionOpenGate.Valid() {
		t.Error("expected open_gate to be valid")
	}
	if dialplan.Action("open_sesame").Valid() {
		t.Error("expected open_sesame to be invalid")
	}
}

func TestActionRelay(t *testing.T) {
	if !dialplan.ActionOpenDoor.Relay() || !dialplan.ActionOpenGate.Relay() {
		t.Error("expected door and gate actions to be relay-backed")
	}
	if dialplan.ActionSendSMS.Relay() {
		t.Error("expected send_sms not to be relay-backed")
	}
}
