package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindConfig, "invalid update interval")
	if err.Error() != "invalid update interval" {
		t.Errorf("expected 'invalid update interval', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindFatal, "rule expansion failed")
	if wrapped.Error() != "rule expansion failed: invalid update interval" {
		t.Errorf("unexpected message: '%s'", wrapped.Error())
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindQueueFull, "queue capacity exceeded")
	if GetKind(err) != KindQueueFull {
		t.Errorf("expected KindQueueFull, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindFatal, "cannot enqueue")
	if GetKind(wrapped) != KindFatal {
		t.Errorf("expected KindFatal, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestAttributes(t *testing.T) {
	err := New(KindDriverInit, "cannot create snmp session")
	err = Attr(err, "ruleId", uint64(7))
	err = Attr(err, "checkId", uint64(3))

	attrs := GetAttributes(err)
	if attrs["ruleId"] != uint64(7) {
		t.Errorf("expected ruleId 7, got %v", attrs["ruleId"])
	}
	if attrs["checkId"] != uint64(3) {
		t.Errorf("expected checkId 3, got %v", attrs["checkId"])
	}

	wrapped := Wrap(err, KindFatal, "job aborted")
	wrapped = Attr(wrapped, "taskId", "t-1")

	allAttrs := GetAttributes(wrapped)
	if allAttrs["ruleId"] != uint64(7) || allAttrs["taskId"] != "t-1" {
		t.Errorf("missing attributes: %v", allAttrs)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindConfig:           "config",
		KindQueueFull:        "queue_full",
		KindProbeFailure:     "probe_failure",
		KindDriverInit:       "driver_init",
		KindIPC:              "ipc",
		KindRevisionMismatch: "revision_mismatch",
		KindFatal:            "fatal",
		KindUnknown:          "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
