package machine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func doAssemble(t *testing.T, program ...string) (image []byte, asm *Assembler, err error) {
	t.Helper()

	asm = &Assembler{}
	image, err = asm.Assemble(strings.NewReader(strings.Join(program, "\n") + "\n"))
	return
}

func TestAssembler_Arithmetic(t *testing.T) {
	assert := assert.New(t)

	image, _, err := doAssemble(t, "PUSH 2", "PUSH 3", "ADD", "OUT", "HLT")
	assert.NoError(err)
	assert.Equal(21, len(image))
	assert.Equal(byte(0x05), image[0])
	assert.Equal(byte(0x05), image[9])
	assert.Equal(byte(0x08), image[18])
	assert.Equal(byte(0x02), image[19])
	assert.Equal(byte(0x00), image[20])
}

func TestAssembler_Registers(t *testing.T) {
	assert := assert.New(t)

	image, _, err := doAssemble(t, "POP AX", "PUSH AX", "POP [BX]", "PUSH [3]", "HLT")
	assert.NoError(err)
	assert.Equal(byte(0x84), image[0])
	assert.Equal(byte(0x00), image[1])
	assert.Equal(byte(0x85), image[2])
	assert.Equal(byte(0x00), image[3])
	assert.Equal(byte(0xc4), image[4])
	assert.Equal(byte(0x01), image[5])
	assert.Equal(byte(0x45), image[6])
}

func TestAssembler_BackwardJump(t *testing.T) {
	assert := assert.New(t)

	image, asm, err := doAssemble(t, "START:", "IN", "OUT", "JMP START", "HLT")
	assert.NoError(err)
	assert.Equal(8, len(image))
	assert.Equal(int32(0), asm.Label["START"])

	inst, err := Decode(image, 2)
	assert.NoError(err)
	assert.Equal(OP_JMP, inst.Op)
	assert.Equal(int32(-2), inst.Delta)
}

func TestAssembler_ForwardJump(t *testing.T) {
	assert := assert.New(t)

	image, asm, err := doAssemble(t, "PUSH 1", "PUSH 2", "JMPL DONE", "OUT", "DONE:", "HLT")
	assert.NoError(err)
	assert.Equal(int32(24), asm.Label["DONE"])

	inst, err := Decode(image, 18)
	assert.NoError(err)
	assert.Equal(OP_JMPL, inst.Op)
	// DONE sits at offset 24; the jump starts at 18.
	assert.Equal(int32(6), inst.Delta)
}

func TestAssembler_CallRet(t *testing.T) {
	assert := assert.New(t)

	image, asm, err := doAssemble(t, "CALL SUB", "HLT", "SUB:", "DUP", "RET")
	assert.NoError(err)
	assert.Equal(int32(6), asm.Label["SUB"])

	inst, err := Decode(image, 0)
	assert.NoError(err)
	assert.Equal(OP_CALL, inst.Op)
	assert.Equal(int32(6), inst.Delta)
}

func TestAssembler_LabelTable(t *testing.T) {
	assert := assert.New(t)

	_, asm, err := doAssemble(t, "A:", "HLT", "B:", "HLT", "C:", "HLT")
	assert.NoError(err)
	assert.Equal(3, len(asm.Label))
	assert.Equal(int32(0), asm.Label["A"])
	assert.Equal(int32(1), asm.Label["B"])
	assert.Equal(int32(2), asm.Label["C"])
}

func TestAssembler_Deterministic(t *testing.T) {
	assert := assert.New(t)

	program := []string{"LOOP:", "PUSH 1", "ADD", "DUP", "PUSH 10", "JMPL LOOP", "HLT"}
	first, _, err := doAssemble(t, program...)
	assert.NoError(err)
	second, _, err := doAssemble(t, program...)
	assert.NoError(err)
	assert.Equal(first, second)
}

func TestAssembler_Expressions(t *testing.T) {
	assert := assert.New(t)

	image, _, err := doAssemble(t, "PUSH $(6 * 7)", "HLT")
	assert.NoError(err)

	inst, err := Decode(image, 0)
	assert.NoError(err)
	assert.Equal(42.0, inst.Imm)
}

func TestAssembler_Expressions_Invalid(t *testing.T) {
	assert := assert.New(t)

	_, _, err := doAssemble(t, "PUSH $(nonsense!)", "HLT")
	assert.ErrorIs(err, ErrInvalidOperation)
}

func TestAssembler_UnknownMnemonic(t *testing.T) {
	assert := assert.New(t)

	_, _, err := doAssemble(t, "FROB 1", "HLT")
	assert.ErrorIs(err, ErrInvalidOperation)

	var syn *SyntaxError
	assert.ErrorAs(err, &syn)
	assert.Equal(1, syn.LineNo)
}

func TestAssembler_BadOperand(t *testing.T) {
	assert := assert.New(t)

	// A bare word operand is only legal on jumps.
	_, _, err := doAssemble(t, "PUSH FOO", "HLT")
	assert.ErrorIs(err, ErrInvalidOperation)

	// ADD takes no operand.
	_, _, err = doAssemble(t, "ADD 1", "HLT")
	assert.ErrorIs(err, ErrInvalidOperation)

	// PUSH requires an operand.
	_, _, err = doAssemble(t, "PUSH", "HLT")
	assert.ErrorIs(err, ErrInvalidOperation)
}

func TestAssembler_DuplicateLabel(t *testing.T) {
	assert := assert.New(t)

	_, _, err := doAssemble(t, "X:", "HLT", "X:", "HLT")
	assert.ErrorIs(err, ErrInvalidLabel)
}

func TestAssembler_MissingLabel(t *testing.T) {
	assert := assert.New(t)

	_, _, err := doAssemble(t, "JMP NOWHERE", "HLT")
	assert.ErrorIs(err, ErrInvalidLabel)
}

func TestAssembler_DanglingLabel(t *testing.T) {
	assert := assert.New(t)

	_, _, err := doAssemble(t, "HLT", "END:")
	assert.ErrorIs(err, ErrInvalidLabel)
}

func TestAssembler_LongLine(t *testing.T) {
	assert := assert.New(t)

	_, _, err := doAssemble(t, "PUSH 1"+strings.Repeat(" ", LINE_MAX), "HLT")
	assert.ErrorIs(err, ErrInvalidOperation)
}

func TestAssembler_BlankLines(t *testing.T) {
	assert := assert.New(t)

	image, _, err := doAssemble(t, "", "  ", "HLT", "", "\t")
	assert.NoError(err)
	assert.Equal([]byte{0x00}, image)
}
