// Package machine implements a stack-based virtual machine toolchain:
// a two-pass assembler from mnemonic source to a binary image, a
// disassembler that reconstructs source with synthesized labels, and
// an interpreter that executes the image against an operand stack,
// four registers, and a small byte-addressed RAM.
package machine
