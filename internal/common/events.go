package common

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrBadEvent = errors.New("malformed event")

// Execution accounts for one fill between an incoming (taker) order and a
// resting (maker) order.
type Execution struct {
	TakerID uint64
	MakerID uint64
	Amount  uint64
	// Price is the maker level's stored price. Ask levels are positive, so a
	// non-negative price means the taker bought; a negative one means it sold
	// at the absolute value.
	Price int32
}

// TakerSide is the side of the incoming order.
func (e Execution) TakerSide() Side {
	if e.Price < 0 {
		return Sell
	}
	return Buy
}

// AbsPrice is the traded price without the side encoding.
func (e Execution) AbsPrice() int64 {
	p := int64(e.Price)
	if p < 0 {
		return -p
	}
	return p
}

func (e Execution) String() string {
	return fmt.Sprintf(
		`Taker:  %s (%v)
Maker:  %s
Amount: %d
Price:  %d`,
		FormatID(e.TakerID),
		e.TakerSide(),
		FormatID(e.MakerID),
		e.Amount,
		e.AbsPrice(),
	)
}

// Reason explains why an order left the engine without (fully) trading. The
// values line up with the order kinds they stem from.
type Reason uint8

const (
	ReasonExplicit   Reason = 0
	ReasonIOC        Reason = 2
	ReasonFOK        Reason = 3
	ReasonPeerKilled Reason = 4
)

func (r Reason) String() string {
	switch r {
	case ReasonExplicit:
		return "explicit"
	case ReasonIOC:
		return "ioc"
	case ReasonFOK:
		return "fok"
	case ReasonPeerKilled:
		return "peer-killed"
	}
	return fmt.Sprintf("Reason(%d)", uint8(r))
}

type Cancellation struct {
	OrderID uint64
	Reason  Reason
}

func (c Cancellation) String() string {
	return fmt.Sprintf("Order: %s Reason: %v", FormatID(c.OrderID), c.Reason)
}

// Event wire format, little-endian.
const (
	eventTagExecution    = 1
	eventTagCancellation = 2

	ExecutionWireSize    = 1 + 8 + 8 + 8 + 4
	CancellationWireSize = 1 + 8 + 1
)

// MarshalBinary encodes the execution for downstream consumers.
func (e Execution) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ExecutionWireSize)
	buf[0] = eventTagExecution
	binary.LittleEndian.PutUint64(buf[1:9], e.TakerID)
	binary.LittleEndian.PutUint64(buf[9:17], e.MakerID)
	binary.LittleEndian.PutUint64(buf[17:25], e.Amount)
	binary.LittleEndian.PutUint32(buf[25:29], uint32(e.Price))
	return buf, nil
}

func (e *Execution) UnmarshalBinary(buf []byte) error {
	if len(buf) != ExecutionWireSize || buf[0] != eventTagExecution {
		return fmt.Errorf("execution: %w", ErrBadEvent)
	}
	e.TakerID = binary.LittleEndian.Uint64(buf[1:9])
	e.MakerID = binary.LittleEndian.Uint64(buf[9:17])
	e.Amount = binary.LittleEndian.Uint64(buf[17:25])
	e.Price = int32(binary.LittleEndian.Uint32(buf[25:29]))
	return nil
}

func (c Cancellation) MarshalBinary() ([]byte, error) {
	buf := make([]byte, CancellationWireSize)
	buf[0] = eventTagCancellation
	binary.LittleEndian.PutUint64(buf[1:9], c.OrderID)
	buf[9] = byte(c.Reason)
	return buf, nil
}

func (c *Cancellation) UnmarshalBinary(buf []byte) error {
	if len(buf) != CancellationWireSize || buf[0] != eventTagCancellation {
		return fmt.Errorf("cancellation: %w", ErrBadEvent)
	}
	c.OrderID = binary.LittleEndian.Uint64(buf[1:9])
	c.Reason = Reason(buf[9])
	return nil
}
