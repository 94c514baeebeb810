package canwire

import "strings"

// Status is a controller status bitmask. Bits mirror the interrupt sources a
// classical CAN controller reports; handlers observe and clear status only and
// never touch message buffers.
type Status uint32

const (
	StatusArbitrationLoss Status = 1 << iota
	StatusOverload
	StatusBitError
	StatusStuffError
	StatusAckError
	StatusFormError
	StatusCRCError
	StatusBusOff
	StatusRxMsgLost
	StatusTxDone
	StatusRxAvailable
	StatusRTR
	StatusStuckAtZero
	StatusSSTFailure
)

var statusNames = map[Status]string{
	StatusArbitrationLoss: "arbitration_loss",
	StatusOverload:        "overload",
	StatusBitError:        "bit_error",
	StatusStuffError:      "stuff_error",
	StatusAckError:        "ack_error",
	StatusFormError:       "form_error",
	StatusCRCError:        "crc_error",
	StatusBusOff:          "bus_off",
	StatusRxMsgLost:       "rx_msg_lost",
	StatusTxDone:          "tx_done",
	StatusRxAvailable:     "rx_available",
	StatusRTR:             "rtr",
	StatusStuckAtZero:     "stuck_at_0",
	StatusSSTFailure:      "sst_failure",
}

func (s Status) String() string {
	if s == 0 {
		return "none"
	}
	parts := make([]string, 0, 4)
	for bit := Status(1); bit != 0 && bit <= s; bit <<= 1 {
		if s&bit == 0 {
			continue
		}
		name, ok := statusNames[bit]
		if !ok {
			continue
		}
		parts = append(parts, name)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// DispatchStatus invokes handle once per set bit, independently and in bit
// order. Condition bits are not mutually exclusive, so every set bit is
// handled rather than only the first match.
func DispatchStatus(s Status, handle func(Status)) int {
	dispatched := 0
	for bit := Status(1); bit != 0 && bit <= s; bit <<= 1 {
		if s&bit == 0 {
			continue
		}
		handle(bit)
		dispatched++
	}
	return dispatched
}
