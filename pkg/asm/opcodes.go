package asm

import (
	"fmt"
	"sort"
	"strings"
)

// Opcode is a one-byte FX16 operation code.
// Opcodes carry no inline operands; every instruction occupies one 16-bit cell.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x08)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpLit  Opcode = 0x01 // Push the following cell (synthesized, no mnemonic)
	OpDrop Opcode = 0x02 // a ->
	OpDup  Opcode = 0x03 // a -> a a
	OpSwap Opcode = 0x04 // a b -> b a
	OpOver Opcode = 0x05 // a b -> a b a
	OpRot  Opcode = 0x06 // a b c -> b c a
	OpPush Opcode = 0x07 // Move top of data stack to return stack
	OpPop  Opcode = 0x08 // Move top of return stack to data stack

	// ========================================================================
	// Memory (0x09-0x0C)
	// ========================================================================

	OpLdb Opcode = 0x09 // addr -> byte
	OpLdw Opcode = 0x0A // addr -> word
	OpStb Opcode = 0x0B // value addr ->
	OpStw Opcode = 0x0C // value addr ->

	// ========================================================================
	// Control flow (0x0D-0x0F)
	// ========================================================================

	OpJmp Opcode = 0x0D // addr ->
	OpJz  Opcode = 0x0E // flag addr ->
	OpJnz Opcode = 0x0F // flag addr ->

	// ========================================================================
	// Arithmetic and logic (0x10-0x1A)
	// ========================================================================

	OpAdd Opcode = 0x10
	OpSub Opcode = 0x11
	OpMul Opcode = 0x12
	OpDiv Opcode = 0x13
	OpMod Opcode = 0x14
	OpAnd Opcode = 0x15
	OpOr  Opcode = 0x16
	OpXor Opcode = 0x17
	OpNot Opcode = 0x18
	OpShl Opcode = 0x19
	OpShr Opcode = 0x1A

	// ========================================================================
	// Comparison (0x1B-0x1D) - push 0xFFFF for true, 0x0000 for false
	// ========================================================================

	OpEq Opcode = 0x1B
	OpLt Opcode = 0x1C
	OpLe Opcode = 0x1D

	// ========================================================================
	// Subroutines (0x1E-0x1F)
	// ========================================================================

	OpCall Opcode = 0x1E // addr -> ; pushes pc on the return stack
	OpRet  Opcode = 0x1F
)

// MinImplicitCall is the smallest cell value the VM treats as an implicit
// call to that address rather than an opcode.
const MinImplicitCall = 0x20

// OpcodeInfo provides metadata about each opcode for listings and editor help.
type OpcodeInfo struct {
	Name      string // Mnemonic, lowercase
	StackPop  int    // Values popped from the data stack
	StackPush int    // Values pushed to the data stack
	Doc       string // One-line description
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:  {"nop", 0, 0, "do nothing"},
	OpDrop: {"drop", 1, 0, "discard the top of stack"},
	OpDup:  {"dup", 1, 2, "duplicate the top of stack"},
	OpSwap: {"swap", 2, 2, "exchange the top two values"},
	OpOver: {"over", 2, 3, "copy the second value to the top"},
	OpRot:  {"rot", 3, 3, "rotate the third value to the top"},
	OpPush: {"push", 1, 0, "move the top of stack to the return stack"},
	OpPop:  {"pop", 0, 1, "move the top of the return stack to the data stack"},

	// Memory
	OpLdb: {"ldb", 1, 1, "load the byte at addr"},
	OpLdw: {"ldw", 1, 1, "load the big-endian word at addr"},
	OpStb: {"stb", 2, 0, "store the low byte of value at addr"},
	OpStw: {"stw", 2, 0, "store value as a big-endian word at addr"},

	// Control flow
	OpJmp: {"jmp", 1, 0, "jump to addr"},
	OpJz:  {"jz", 2, 0, "jump to addr if flag is zero"},
	OpJnz: {"jnz", 2, 0, "jump to addr if flag is non-zero"},

	// Arithmetic and logic
	OpAdd: {"add", 2, 1, "a + b"},
	OpSub: {"sub", 2, 1, "a - b"},
	OpMul: {"mul", 2, 1, "a * b"},
	OpDiv: {"div", 2, 1, "a / b, unsigned"},
	OpMod: {"mod", 2, 1, "a % b, unsigned"},
	OpAnd: {"and", 2, 1, "bitwise and"},
	OpOr:  {"or", 2, 1, "bitwise or"},
	OpXor: {"xor", 2, 1, "bitwise exclusive or"},
	OpNot: {"not", 1, 1, "bitwise complement"},
	OpShl: {"shl", 2, 1, "a << b"},
	OpShr: {"shr", 2, 1, "a >> b, logical"},

	// Comparison
	OpEq: {"eq", 2, 1, "a == b"},
	OpLt: {"lt", 2, 1, "a < b, unsigned"},
	OpLe: {"le", 2, 1, "a <= b, unsigned"},

	// Subroutines
	OpCall: {"call", 1, 0, "push pc on the return stack and jump to addr"},
	OpRet:  {"ret", 0, 0, "return to the address on the return stack"},
}

// mnemonicTable is the reverse of opcodeInfoTable, built once.
var mnemonicTable = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// Lookup returns the opcode for a mnemonic. Matching is case-insensitive.
// The literal push has no mnemonic and is never returned.
func Lookup(mnemonic string) (Opcode, bool) {
	op, ok := mnemonicTable[strings.ToLower(mnemonic)]
	return op, ok
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if op == OpLit {
		return OpcodeInfo{Name: "lit", StackPush: 1, Doc: "push the following cell"}
	}
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsJump reports whether the opcode transfers control.
func (op Opcode) IsJump() bool {
	return (op >= OpJmp && op <= OpJnz) || op == OpCall || op == OpRet
}

// AllOpcodes returns every opcode that has a mnemonic, in numeric order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	sort.Slice(opcodes, func(i, j int) bool { return opcodes[i] < opcodes[j] })
	return opcodes
}

// Mnemonics returns every mnemonic, sorted alphabetically.
func Mnemonics() []string {
	names := make([]string, 0, len(mnemonicTable))
	for name := range mnemonicTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpcodeCount returns the number of mnemonics.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
