package image

import (
	"errors"
	"fmt"

	"github.com/bigbag/sw8b-flasher/internal/pagestore"
)

const (
	crcPoly = 0x1021
	crcInit = 0xFFFF
)

// CRC16CCITT computes CRC-16/CCITT (poly 0x1021, init 0xFFFF, MSB first)
// over [start, end). An absent byte is replaced by fill unless strict is
// set, in which case the address is logged and 0 is returned. A read
// failure is logged and also returns 0.
func (e *Exporter) CRC16CCITT(start, end uint32, strict bool, fill byte) uint16 {
	crc := uint16(crcInit)
	for a := start; a < end; a++ {
		v, ok, err := e.store.GetByte(a)
		if err != nil {
			e.store.Warnings().Add(pagestore.KindReadFailed, a)
			return 0
		}
		if !ok {
			if strict {
				e.store.Warnings().Add(pagestore.KindMissingCRC, a)
				return 0
			}
			v = fill
		}
		crc = crcUpdate(crc, v)
	}
	return crc
}

// CRC16 is the same checksum over an in-memory buffer.
func CRC16(data []byte) uint16 {
	crc := uint16(crcInit)
	for _, b := range data {
		crc = crcUpdate(crc, b)
	}
	return crc
}

func crcUpdate(crc uint16, b byte) uint16 {
	crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = crc<<1 ^ crcPoly
		} else {
			crc <<= 1
		}
	}
	return crc
}

// ErrCRCIncomplete is returned by CheckedCRC when CRC16CCITT logged a
// missing byte or a read failure.
var ErrCRCIncomplete = errors.New("crc range incomplete")

// CheckedCRC runs CRC16CCITT and turns any warning it logged into an error,
// so a 0 caused by an abort is never taken for a checksum.
func (e *Exporter) CheckedCRC(start, end uint32, strict bool, fill byte) (uint16, error) {
	before := e.store.Warnings().Len()
	crc := e.CRC16CCITT(start, end, strict, fill)
	if e.store.Warnings().Len() > before {
		last, _ := e.store.Warnings().Last()
		return 0, fmt.Errorf("%w: %s", ErrCRCIncomplete, last)
	}
	return crc, nil
}
