// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package machine

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
)

// Assembler is a two-pass assembler for stack machine source text.
type Assembler struct {
	Verbose bool // If set, verbosely logs the assembler actions.

	Label map[string]int32 // Map of jump labels to image offsets.
}

// Assemble reads source text and produces a binary image. Pass one
// collects label offsets; pass two emits bytes and resolves jumps.
func (asm *Assembler) Assemble(input io.Reader) (image []byte, err error) {
	var lines []string

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	err = scanner.Err()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidFile, err)
		return
	}

	if asm.Label == nil {
		asm.Label = make(map[string]int32, 16)
	}
	clear(asm.Label)

	_, err = asm.pass(lines, true)
	if err != nil {
		return
	}

	image, err = asm.pass(lines, false)
	return
}

// pass walks the source lines once. On the first pass the label table
// is populated and no bytes are emitted.
func (asm *Assembler) pass(lines []string, first bool) (image []byte, err error) {
	var offset int32
	pendingLabel := false

	for n, text := range lines {
		lineno := n + 1
		line := strings.TrimSpace(text)
		if len(line) == 0 {
			continue
		}

		if len(text) > LINE_MAX {
			err = &SyntaxError{LineNo: lineno, Line: line,
				Err: fmt.Errorf("%w: %v", ErrInvalidOperation, f("line longer than %v bytes", LINE_MAX))}
			return
		}

		if name, ok := parseLabel(line); ok {
			if first {
				_, dup := asm.Label[name]
				if dup {
					err = &SyntaxError{LineNo: lineno, Line: line,
						Err: fmt.Errorf("%w: %v", ErrInvalidLabel, f("label '%v' duplicated", name))}
					return
				}
				asm.Label[name] = offset
			}
			pendingLabel = true
			continue
		}

		var inst Instruction
		inst, err = asm.instruction(line, offset, first)
		if err != nil {
			err = &SyntaxError{LineNo: lineno, Line: line, Err: err}
			return
		}

		if !first {
			if asm.Verbose {
				log.Printf("%08x: %v\n", offset, inst)
			}
			image, err = inst.Append(image)
			if err != nil {
				err = &SyntaxError{LineNo: lineno, Line: line, Err: err}
				return
			}
		}

		offset += inst.Size()
		pendingLabel = false
	}

	if first && pendingLabel {
		err = fmt.Errorf("%w: %v", ErrInvalidLabel, f("label without a following instruction"))
	}

	return
}

// instruction assembles one source line. On the first pass jump
// operands are left unresolved.
func (asm *Assembler) instruction(line string, offset int32, first bool) (inst Instruction, err error) {
	line, err = expandExpressions(line)
	if err != nil {
		return
	}

	st, err := parseStatement(line)
	if err != nil {
		return
	}

	op, ok := opByName[st.Mnemonic]
	if !ok {
		err = MnemonicError(st.Mnemonic)
		return
	}

	inst.Op = op
	info := opTable[op]

	switch {
	case st.Operand == nil:
		inst.Kind = OPERAND_NONE
	case st.Operand.Ram != nil:
		if st.Operand.Ram.Register != nil {
			inst.Kind = OPERAND_RAM_REG
			inst.Reg = registerByName(*st.Operand.Ram.Register)
		} else {
			inst.Kind = OPERAND_RAM_IMM
			inst.Imm = *st.Operand.Ram.Number
		}
	case st.Operand.Direct != nil:
		if st.Operand.Direct.Register != nil {
			inst.Kind = OPERAND_REG
			inst.Reg = registerByName(*st.Operand.Direct.Register)
		} else {
			inst.Kind = OPERAND_IMM
			inst.Imm = *st.Operand.Direct.Number
		}
	default:
		// A bare word operand is only meaningful as a jump target.
		if !info.jump {
			err = fmt.Errorf("%w: %v", ErrInvalidOperation, f("%v does not take a label", op))
			return
		}
		inst.Kind = OPERAND_JUMP
		if !first {
			target, ok := asm.Label[*st.Operand.Label]
			if !ok {
				err = fmt.Errorf("%w: %v", ErrInvalidLabel, f("label '%v' missing", *st.Operand.Label))
				return
			}
			inst.Delta = target - offset
		}
	}

	err = inst.check()
	return
}

var registerNames = map[string]Register{
	"AX": REG_AX,
	"BX": REG_BX,
	"CX": REG_CX,
	"DX": REG_DX,
}

// registerByName maps a Register token back to its index. The lexer
// only produces the four known names.
func registerByName(name string) Register {
	return registerNames[name]
}
