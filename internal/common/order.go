package common

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Record layout. All fields are little-endian.
const (
	OffsetCustomerID = 0
	OffsetSequence   = OffsetCustomerID + 4
	OffsetTimestamp  = OffsetSequence + 4
	OffsetAmount     = OffsetTimestamp + 8
	OffsetPrice      = OffsetAmount + 8
	OffsetKind       = OffsetPrice + 4
	OffsetProcess    = OffsetKind + 1

	// The id spans customer id and sequence.
	OffsetID = OffsetCustomerID

	RecordSize = OffsetProcess + 1
)

// Prices used for market orders. A buy at MarketBuyPrice crosses every real
// ask and a sell at MarketSellPrice crosses every real bid.
const (
	MarketBuyPrice  int32 = -math.MaxInt32
	MarketSellPrice int32 = 0
)

// AmountScale is the number of decimal places carried by an amount.
const AmountScale = 8

type Kind uint8

const (
	KindCancel Kind = iota
	// Good-till-canceled orders rest in the book until filled or canceled.
	KindGTC
	// Immediate-or-cancel orders match what they can and drop the rest.
	KindIOC
	// Fill-or-kill orders match completely or not at all.
	KindFOK
)

func (k Kind) String() string {
	switch k {
	case KindCancel:
		return "CANCEL"
	case KindGTC:
		return "GTC"
	case KindIOC:
		return "IOC"
	case KindFOK:
		return "FOK"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

type Process uint8

const (
	ProcessCancel    Process = 0
	ProcessOrder     Process = 1
	ProcessOCO       Process = 2
	ProcessTerminate Process = 255
)

func (p Process) String() string {
	switch p {
	case ProcessCancel:
		return "CANCEL"
	case ProcessOrder:
		return "ORDER"
	case ProcessOCO:
		return "OCO"
	case ProcessTerminate:
		return "TERMINATE"
	}
	return fmt.Sprintf("Process(%d)", uint8(p))
}

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// SideOf reports the side encoded in a signed price.
func SideOf(price int32) Side {
	if price < 0 {
		return Buy
	}
	return Sell
}

// The accessors below read straight out of a borrowed buffer. The caller
// guarantees len(b) >= RecordSize.

func ProcessOf(b []byte) Process { return Process(b[OffsetProcess]) }

func KindOf(b []byte) Kind { return Kind(b[OffsetKind]) }

func IsOCO(b []byte) bool { return Process(b[OffsetProcess]) == ProcessOCO }

func IDOf(b []byte) uint64 { return binary.LittleEndian.Uint64(b[OffsetID:]) }

func CustomerIDOf(b []byte) uint32 { return binary.LittleEndian.Uint32(b[OffsetCustomerID:]) }

func SequenceOf(b []byte) uint32 { return binary.LittleEndian.Uint32(b[OffsetSequence:]) }

func TimestampOf(b []byte) uint64 { return binary.LittleEndian.Uint64(b[OffsetTimestamp:]) }

func AmountOf(b []byte) uint64 { return binary.LittleEndian.Uint64(b[OffsetAmount:]) }

func PriceOf(b []byte) int32 { return int32(binary.LittleEndian.Uint32(b[OffsetPrice:])) }

// ToID composes the order id of a customer's sequence number. It is the
// little-endian reading of the first eight bytes of a record.
func ToID(customerID, sequence uint32) uint64 {
	return uint64(sequence)<<32 | uint64(customerID)
}

// SplitID is the inverse of ToID.
func SplitID(id uint64) (customerID, sequence uint32) {
	return uint32(id), uint32(id >> 32)
}

// PeerID returns the id of the other leg of an OCO pair. Buy legs are always
// followed by their sell leg, one sequence number later.
func PeerID(id uint64, price int32) uint64 {
	if price < 0 {
		return id + 1<<32
	}
	return id - 1<<32
}

// FormatID renders an id as customer:sequence in hex.
func FormatID(id uint64) string {
	customerID, sequence := SplitID(id)
	return fmt.Sprintf("%08x:%08x", customerID, sequence)
}

// Record is an order message held by value.
type Record [RecordSize]byte

func (r *Record) Process() Process { return ProcessOf(r[:]) }
func (r *Record) Kind() Kind { return KindOf(r[:]) }
func (r *Record) IsOCO() bool { return IsOCO(r[:]) }
func (r *Record) ID() uint64 { return IDOf(r[:]) }
func (r *Record) CustomerID() uint32 { return CustomerIDOf(r[:]) }
func (r *Record) Sequence() uint32 { return SequenceOf(r[:]) }
func (r *Record) Timestamp() uint64 { return TimestampOf(r[:]) }
func (r *Record) Amount() uint64 { return AmountOf(r[:]) }
func (r *Record) Price() int32 { return PriceOf(r[:]) }
func (r *Record) Side() Side { return SideOf(r.Price()) }
func (r *Record) PeerID() uint64 { return PeerID(r.ID(), r.Price()) }
func (r *Record) Bytes() []byte { return r[:] }
func (r *Record) SetProcess(p Process) { r[OffsetProcess] = byte(p) }

func (r Record) String() string {
	return fmt.Sprintf(
		`ID:        %s
Process:   %v
Kind:      %v
Price:     %d
Amount:    %d
Timestamp: %d`,
		FormatID(r.ID()),
		r.Process(),
		r.Kind(),
		r.Price(),
		r.Amount(),
		r.Timestamp(),
	)
}

// Encode writes the fields into a record.
func Encode(customerID, sequence uint32, timestamp, amount uint64, price int32, kind Kind, process Process) Record {
	var r Record
	binary.LittleEndian.PutUint32(r[OffsetCustomerID:], customerID)
	binary.LittleEndian.PutUint32(r[OffsetSequence:], sequence)
	binary.LittleEndian.PutUint64(r[OffsetTimestamp:], timestamp)
	binary.LittleEndian.PutUint64(r[OffsetAmount:], amount)
	binary.LittleEndian.PutUint32(r[OffsetPrice:], uint32(price))
	r[OffsetKind] = byte(kind)
	r[OffsetProcess] = byte(process)
	return r
}

// Builder produces consecutive records for one customer. Each built order
// consumes a sequence number; cancels and terminates do not.
type Builder struct {
	CustomerID uint32
	Sequence   uint32 // Next sequence to hand out, starts at 1.
	RealTime   bool   // Stamp with wall clock instead of the sequence.
}

func NewBuilder(customerID uint32) *Builder {
	return &Builder{CustomerID: customerID, Sequence: 1}
}

func (b *Builder) timestamp() uint64 {
	if b.RealTime {
		return uint64(time.Now().UnixNano())
	}
	return uint64(b.Sequence)
}

// Build encodes the next order and advances the sequence.
func (b *Builder) Build(amount uint64, price int32, kind Kind, process Process) Record {
	r := Encode(b.CustomerID, b.Sequence, b.timestamp(), amount, price, kind, process)
	b.Sequence++
	return r
}

// GTC is shorthand for a plain good-till-canceled order.
func (b *Builder) GTC(amount uint64, price int32) Record {
	return b.Build(amount, price, KindGTC, ProcessOrder)
}

// OCO encodes a buy leg and its sell leg with adjacent sequence numbers.
func (b *Builder) OCO(amount uint64, buyPrice, sellPrice int32, kind Kind) (Record, Record) {
	buy := b.Build(amount, buyPrice, kind, ProcessOCO)
	sell := b.Build(amount, sellPrice, kind, ProcessOCO)
	return buy, sell
}

// Cancel encodes a cancel for one of this customer's earlier sequences.
func (b *Builder) Cancel(sequence uint32) Record {
	return Encode(b.CustomerID, sequence, b.timestamp(), 0, 0, KindCancel, ProcessCancel)
}

// Terminate encodes the record that stops the engine.
func (b *Builder) Terminate() Record {
	var r Record
	r[OffsetProcess] = byte(ProcessTerminate)
	return r
}
