package model

import "testing"

func TestPartialResultReady(t *testing.T) {
	p := &PartialResult{OutstandingChecks: 2}
	if p.Ready() {
		t.Fatal("Ready() should be false with outstanding checks")
	}
	p.OutstandingChecks = 0
	if !p.Ready() {
		t.Fatal("Ready() should be true once outstanding checks reach 0")
	}
}

func TestPartialResultIsUpRequiresAnyServiceUp(t *testing.T) {
	p := &PartialResult{
		UniqueCheckID: 5,
		Services: []DiscoveredService{
			{CheckID: 1, Status: StatusDown},
			{CheckID: 5, Status: StatusDown},
		},
	}
	if p.IsUp() {
		t.Fatal("IsUp() should be false when every service is down, regardless of UniqueCheckID")
	}

	p.Services[0].Status = StatusUp
	if !p.IsUp() {
		t.Fatal("IsUp() should be true once any service reports up, even one other than UniqueCheckID")
	}
}

func TestPartialResultIsUpFallsBackToAnyUp(t *testing.T) {
	p := &PartialResult{
		Services: []DiscoveredService{
			{CheckID: 1, Status: StatusDown},
			{CheckID: 2, Status: StatusUp},
		},
	}
	if !p.IsUp() {
		t.Fatal("IsUp() should be true when any service is up")
	}
}

func TestServiceStatusString(t *testing.T) {
	if StatusUp.String() != "up" {
		t.Errorf("StatusUp.String() = %q, want up", StatusUp.String())
	}
	if StatusDown.String() != "down" {
		t.Errorf("StatusDown.String() = %q, want down", StatusDown.String())
	}
}
