package asm

import (
	"fmt"
	"io"
)

// ImageSize is the size of the FX16 address space in bytes.
const ImageSize = 0x10000

// Image is the FX16 memory image being assembled, plus the program counter
// where the next emission lands. Every address wraps into [0, ImageSize);
// the image never grows.
type Image struct {
	mem [ImageSize]byte
	pc  uint16
}

// NewImage returns a zero-filled image with the program counter at 0.
func NewImage() *Image {
	return &Image{}
}

// SetByte stores value at addr.
func (img *Image) SetByte(addr uint16, value byte) {
	img.mem[addr] = value
}

// SetWord stores value big-endian at addr. A word written at 0xFFFF wraps
// its low byte to address 0.
func (img *Image) SetWord(addr uint16, value uint16) {
	img.SetByte(addr, byte(value>>8))
	img.SetByte(addr+1, byte(value))
}

// Byte returns the byte at addr.
func (img *Image) Byte(addr uint16) byte {
	return img.mem[addr]
}

// Word returns the big-endian word at addr, wrapping like SetWord.
func (img *Image) Word(addr uint16) uint16 {
	return uint16(img.mem[addr])<<8 | uint16(img.mem[addr+1])
}

// EmitByte writes value at the program counter and advances it by one.
func (img *Image) EmitByte(value byte) {
	img.SetByte(img.pc, value)
	img.pc++
}

// EmitWord writes value at the program counter and advances it by two.
// Returns the address the word was written to.
func (img *Image) EmitWord(value uint16) uint16 {
	at := img.pc
	img.SetWord(at, value)
	img.pc += 2
	return at
}

// PC returns the program counter.
func (img *Image) PC() uint16 {
	return img.pc
}

// SetPC repositions the program counter without emitting anything.
func (img *Image) SetPC(addr uint16) {
	img.pc = addr
}

// Bytes returns a copy of the whole address space.
func (img *Image) Bytes() []byte {
	out := make([]byte, ImageSize)
	copy(out, img.mem[:])
	return out
}

// WriteTo writes all ImageSize bytes to w, untouched regions included.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(img.mem[:])
	return int64(n), err
}

// LoadImage reads a complete memory image from r. The input must be exactly
// ImageSize bytes long.
func LoadImage(r io.Reader) (*Image, error) {
	img := NewImage()
	n, err := io.ReadFull(r, img.mem[:])
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrImageSize, n, ImageSize)
	}
	if err != nil {
		return nil, err
	}

	var extra [1]byte
	if m, _ := r.Read(extra[:]); m > 0 {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageSize, ImageSize)
	}
	return img, nil
}
