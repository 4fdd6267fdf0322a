/*

Command fx16asm assembles FX16 programs

Usage:

	fx16asm [-o memory.bin] [-sym file] [-I dir]... [-v] file.asm...
	fx16asm -d [-sym file] [-from addr] [-to addr] memory.bin
	fx16asm -build [-target name]
	fx16asm -lsp

By default, fx16asm assembles the named sources, in order, into a single
65536-byte memory image. Later files see the labels of earlier ones, and
references are resolved only after the last file. When any reference is
undefined no image is written.

Flag -sym also writes the label table in CBOR form, which -d uses to
annotate the listing.

Flag -d reads an image and prints a listing of [from, to).

Flag -build builds every target of the nearest fx16.toml in parallel.
Run without arguments, fx16asm builds the nearest fx16.toml or, when there
is none, assembles demo.asm in the current directory.

Flag -lsp serves editors over stdio.

Examples:

	$ fx16asm -o rom.bin -sym rom.sym boot.asm main.asm
	$ fx16asm -d -sym rom.sym -to 0x40 rom.bin
	; FX16 image 0x0000-0x0040
	start:
	0000  0001 0010  lit 0x0010
	...

*/
package main
