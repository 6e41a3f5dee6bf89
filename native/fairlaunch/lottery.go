package fairlaunch

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
	"strings"

	"lukechampine.com/blake3"
)

// Bitmap holds one bit per accepted bid, set for lottery winners.
type Bitmap struct {
	capacity uint64
	data     []byte
}

func bitmapBytes(capacity uint64) uint64 { return capacity/8 + 1 }

// NewBitmap allocates an empty bitmap for capacity bids.
func NewBitmap(capacity uint64) *Bitmap {
	return &Bitmap{capacity: capacity, data: make([]byte, bitmapBytes(capacity))}
}

// BitmapFromBytes wraps raw bitmap bytes. Bits beyond capacity must be zero.
func BitmapFromBytes(capacity uint64, raw []byte) (*Bitmap, error) {
	if uint64(len(raw)) > bitmapBytes(capacity) {
		return nil, ErrStripOutOfRange
	}
	bm := NewBitmap(capacity)
	copy(bm.data, raw)
	if bm.strayBits() {
		return nil, ErrStripOutOfRange
	}
	return bm, nil
}

// ParseBitmapHex decodes a hex encoded bitmap, with or without 0x prefix.
func ParseBitmapHex(capacity uint64, encoded string) (*Bitmap, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode bitmap: %w", err)
	}
	return BitmapFromBytes(capacity, raw)
}

// Capacity returns the number of addressable bits.
func (b *Bitmap) Capacity() uint64 {
	if b == nil {
		return 0
	}
	return b.capacity
}

// Bytes returns a copy of the underlying bytes.
func (b *Bitmap) Bytes() []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b.data...)
}

// Hex renders the bitmap as a 0x-prefixed hex string.
func (b *Bitmap) Hex() string { return "0x" + hex.EncodeToString(b.Bytes()) }

// Digest commits to the winner set: blake3 over the capacity followed by the
// raw bitmap bytes.
func (b *Bitmap) Digest() [32]byte {
	if b == nil {
		return blake3.Sum256(nil)
	}
	buf := make([]byte, 8, 8+len(b.data))
	binary.BigEndian.PutUint64(buf, b.capacity)
	return blake3.Sum256(append(buf, b.data...))
}

// Clone returns a deep copy.
func (b *Bitmap) Clone() *Bitmap {
	if b == nil {
		return nil
	}
	return &Bitmap{capacity: b.capacity, data: b.Bytes()}
}

// Set marks bid seq as a winner.
func (b *Bitmap) Set(seq uint64) error {
	if b == nil || seq >= b.capacity {
		return ErrStripOutOfRange
	}
	mask, index := MaskAndIndex(seq)
	b.data[index] |= mask
	return nil
}

// IsSet reports whether bid seq won the lottery.
func (b *Bitmap) IsSet(seq uint64) bool {
	if b == nil || seq >= b.capacity {
		return false
	}
	mask, index := MaskAndIndex(seq)
	return b.data[index]&mask != 0
}

// Ones counts the winners marked so far.
func (b *Bitmap) Ones() uint64 {
	if b == nil {
		return 0
	}
	var total uint64
	for _, v := range b.data {
		total += uint64(bits.OnesCount8(v))
	}
	return total
}

// WriteStrip overwrites bytes starting at byte offset. Strips let a large
// bitmap be populated over several calls.
func (b *Bitmap) WriteStrip(offset uint64, strip []byte) error {
	if b == nil {
		return ErrStripOutOfRange
	}
	end, ok := checkedAdd(offset, uint64(len(strip)))
	if !ok || end > uint64(len(b.data)) {
		return ErrStripOutOfRange
	}
	candidate := b.Clone()
	copy(candidate.data[offset:end], strip)
	if candidate.strayBits() {
		return ErrStripOutOfRange
	}
	b.data = candidate.data
	return nil
}

func (b *Bitmap) strayBits() bool {
	for seq := b.capacity; seq < uint64(len(b.data))*8; seq++ {
		mask, index := MaskAndIndex(seq)
		if b.data[index]&mask != 0 {
			return true
		}
	}
	return false
}

// Seal checks the bitmap against the bids accepted in phase one and, when the
// counts agree, returns the sealed state.
func Seal(cfg *SaleConfig, st *SaleState, bm *Bitmap, now int64) (*SaleState, error) {
	if cfg == nil || st == nil {
		return nil, ErrSaleNotFound
	}
	if st.LotterySealed {
		return nil, ErrAlreadySealed
	}
	if CurrentPhase(cfg, st, now) == PhaseBidding {
		return nil, ErrBiddingOpen
	}
	if bm == nil || bm.Capacity() != st.BidsAccepted {
		return nil, ErrCardinalityMismatch
	}
	ones := bm.Ones()
	if ones != st.BidsAccepted {
		return nil, ErrCardinalityMismatch
	}
	next := st.Clone()
	next.BitmapOnes = ones
	next.LotterySealed = true
	return next, nil
}
