package canmsg

import (
	"errors"
	"fmt"

	"github.com/danmuck/canterm/internal/canwire"
)

var ErrTransmitRejected = errors.New("canmsg: transmit rejected")

// Sender is the transmit boundary of the physical or virtual link.
type Sender interface {
	Send(canwire.Frame) error
}

// Send outcomes rendered to the operator.
const (
	OutcomeAllSent       = "all_sent"
	OutcomePartiallySent = "partially_sent"
	OutcomeNothingSent   = "nothing_sent"
)

// SendReport summarizes one message transmission attempt.
type SendReport struct {
	Attempted int
	Sent      int
	Outcome   string
}

// SendMessage transmits frames in order. The first rejection aborts the
// remaining frames: no retry, and frames already on the wire stand. The
// report distinguishes a message that never made it from one that was cut
// short.
func SendMessage(bus Sender, frames []canwire.Frame) (SendReport, error) {
	report := SendReport{Attempted: len(frames), Outcome: OutcomeAllSent}
	for i, f := range frames {
		if err := bus.Send(f); err != nil {
			report.Outcome = OutcomePartiallySent
			if report.Sent == 0 {
				report.Outcome = OutcomeNothingSent
			}
			return report, fmt.Errorf("%w: frame %d/%d: %v", ErrTransmitRejected, i+1, len(frames), err)
		}
		report.Sent++
	}
	return report, nil
}
