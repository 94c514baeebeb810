package canwire

import "testing"

func TestDispatchStatusVisitsEverySetBit(t *testing.T) {
	mask := StatusBusOff | StatusRxMsgLost | StatusAckError
	seen := make(map[Status]int)
	n := DispatchStatus(mask, func(bit Status) {
		seen[bit]++
	})
	if n != 3 {
		t.Fatalf("dispatched %d, want 3", n)
	}
	for _, bit := range []Status{StatusBusOff, StatusRxMsgLost, StatusAckError} {
		if seen[bit] != 1 {
			t.Fatalf("bit %v handled %d times", bit, seen[bit])
		}
	}
	if len(seen) != 3 {
		t.Fatalf("unexpected bits handled: %v", seen)
	}
}

func TestDispatchStatusEmptyMask(t *testing.T) {
	n := DispatchStatus(0, func(Status) {
		t.Fatal("handler invoked for empty mask")
	})
	if n != 0 {
		t.Fatalf("dispatched %d, want 0", n)
	}
}

func TestStatusString(t *testing.T) {
	if got := Status(0).String(); got != "none" {
		t.Fatalf("zero status: %q", got)
	}
	got := (StatusBusOff | StatusTxDone).String()
	if got != "bus_off|tx_done" {
		t.Fatalf("combined status: %q", got)
	}
}
