package asm

import (
	"fmt"
	"strings"
)

// minZeroRun is the shortest run of zero cells collapsed into one line.
const minZeroRun = 4

// Disassemble returns a listing of the cells in [from, to). Each line shows
// the address, the raw cell(s) and the decoded instruction. syms may be nil;
// when present, labels are printed above the code they name and literal
// pushes of reference sites show the label they were assembled from.
func Disassemble(img *Image, from, to int, syms *SymbolTable) string {
	if from < 0 {
		from = 0
	}
	if to > ImageSize {
		to = ImageSize
	}
	if syms == nil {
		syms = &SymbolTable{}
	}

	refAt := make(map[uint16]string, len(syms.References))
	for _, r := range syms.References {
		refAt[r.Offset] = r.Label
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "; FX16 image 0x%04X-0x%04X\n", from, to)

	addr := from
	for addr < to {
		if n := zeroRun(img, addr, to, syms); n >= minZeroRun {
			writeLabels(&sb, syms, addr, 1)
			fmt.Fprintf(&sb, "%04X  ....       ; %d zero cells\n", addr, n)
			addr += 2 * n
			continue
		}

		text, size := disassembleCell(img, addr, to, syms, refAt)
		writeLabels(&sb, syms, addr, size)

		raw := fmt.Sprintf("%04X", img.Word(uint16(addr)))
		if size == 4 {
			raw += fmt.Sprintf(" %04X", img.Word(uint16(addr+2)))
		}
		fmt.Fprintf(&sb, "%04X  %-9s  %s\n", addr, raw, text)
		addr += size
	}
	return sb.String()
}

// disassembleCell decodes the cell at addr and returns its text and size in
// bytes.
func disassembleCell(img *Image, addr, to int, syms *SymbolTable, refAt map[uint16]string) (string, int) {
	cell := img.Word(uint16(addr))

	switch {
	case cell == uint16(OpLit):
		if addr+4 > to {
			return fmt.Sprintf(".word 0x%04X", cell), 2
		}
		operand := uint16(addr + 2)
		value := img.Word(operand)
		if label, ok := refAt[operand]; ok {
			return fmt.Sprintf("lit @%s ; 0x%04X", label, value), 4
		}
		return fmt.Sprintf("lit 0x%04X", value), 4

	case cell < MinImplicitCall:
		return Opcode(cell).String(), 2

	default:
		if names := syms.LabelsAt(cell); len(names) > 0 {
			return fmt.Sprintf("call 0x%04X ; %s", cell, names[0]), 2
		}
		return fmt.Sprintf("call 0x%04X", cell), 2
	}
}

// zeroRun counts consecutive zero cells from addr that carry no label.
func zeroRun(img *Image, addr, to int, syms *SymbolTable) int {
	n := 0
	for a := addr; a+2 <= to; a += 2 {
		if img.Word(uint16(a)) != 0 {
			break
		}
		if a > addr && len(syms.LabelsAt(uint16(a))) > 0 {
			break
		}
		if len(syms.LabelsAt(uint16(a+1))) > 0 {
			break
		}
		n++
	}
	return n
}

// writeLabels prints labels that point into [addr, addr+size).
func writeLabels(sb *strings.Builder, syms *SymbolTable, addr, size int) {
	for off := 0; off < size; off++ {
		for _, name := range syms.LabelsAt(uint16(addr + off)) {
			if off == 0 {
				sb.WriteString(name + ":\n")
			} else {
				fmt.Fprintf(sb, "%s: ; 0x%04X\n", name, addr+off)
			}
		}
	}
}
