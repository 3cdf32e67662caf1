package net

import (
	"errors"
	"fmt"
	"io"

	"gleipnir/internal/common"
)

var ErrMessageTooShort = errors.New("message too short")

// FrameSize is the largest frame: an OCO buy leg followed by its sell leg.
const FrameSize = 2 * common.RecordSize

// ReadFrame reads the next frame off r into buf, which must hold FrameSize
// bytes. A frame is one record, or two when the first one is an OCO leg. The
// returned slices alias buf. io.EOF is returned only on a clean frame
// boundary.
func ReadFrame(r io.Reader, buf []byte) (order, peer []byte, err error) {
	if len(buf) < FrameSize {
		return nil, nil, fmt.Errorf("frame buffer of %d bytes: %w", len(buf), ErrMessageTooShort)
	}

	order = buf[:common.RecordSize]
	if _, err := io.ReadFull(r, order); err != nil {
		return nil, nil, err
	}
	if !common.IsOCO(order) {
		return order, nil, nil
	}

	peer = buf[common.RecordSize:FrameSize]
	if _, err := io.ReadFull(r, peer); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, fmt.Errorf("oco peer: %w", err)
	}
	return order, peer, nil
}

// WriteRecords writes records back to back, which is how a client frames
// them.
func WriteRecords(w io.Writer, records ...common.Record) error {
	buf := make([]byte, 0, len(records)*common.RecordSize)
	for i := range records {
		buf = append(buf, records[i][:]...)
	}
	_, err := w.Write(buf)
	return err
}
