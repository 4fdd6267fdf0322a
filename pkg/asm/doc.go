// Package asm assembles FX16 source into a 64 KiB memory image.
//
// FX16 is a small 16-bit stack machine. Its memory is a flat 65536-byte
// address space, instructions are 16-bit big-endian cells, and every opcode
// is operand-less: values reach the stack through the literal push (cell
// 0x0001 followed by the value cell).
//
// # Source format
//
// Source is processed line by line. Each line is split on whitespace and the
// tokens are handled left to right:
//
//	; comment     rest of the line is ignored
//	name:         define label name at the program counter
//	@name         push the address of name
//	.N            emit the raw byte N
//	,N            emit the raw big-endian word N
//	>N            move the program counter to N
//	#path         assemble the file at path in place
//	mnemonic      emit the opcode cell
//	N             push the literal N
//	name          push the address of name
//
// Integers are decimal, or hexadecimal when written 0x10, $10 or 10h.
//
// # Two passes
//
// Label uses may precede their definition. Every label use emits a zero
// placeholder and records a Reference. Resolve, called by Finalize after all
// source has been read, overwrites each placeholder with the label's
// address; a label that was never defined aborts the session before any
// output is written. Redefining a label is allowed and the last definition
// wins.
//
// # Sessions
//
// An Assembler holds the image, the label table and the reference list for
// one session. Assemble may be called for several files before Finalize;
// #include shares the same state, so included code lands at the current
// program counter and sees the same labels.
package asm
