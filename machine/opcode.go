package machine

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Op is a base operation code, the low six bits of an instruction byte.
type Op byte

const (
	OP_HLT   = Op(0x00)
	OP_IN    = Op(0x01)
	OP_OUT   = Op(0x02)
	OP_POP   = Op(0x04)
	OP_PUSH  = Op(0x05)
	OP_ADD   = Op(0x08)
	OP_SUB   = Op(0x09)
	OP_MUL   = Op(0x0a)
	OP_DIV   = Op(0x0b)
	OP_SQRT  = Op(0x0c)
	OP_DUP   = Op(0x0d)
	OP_JMP   = Op(0x10)
	OP_JMPE  = Op(0x11)
	OP_JMPNE = Op(0x12)
	OP_JMPL  = Op(0x13)
	OP_JMPLE = Op(0x14)
	OP_JMPG  = Op(0x15)
	OP_JMPGE = Op(0x16)
	OP_CALL  = Op(0x17)
	OP_RET   = Op(0x18)
)

const (
	// REG_FLAG marks the operand byte as a register index.
	REG_FLAG = byte(0x80)
	// RAM_FLAG marks the operand as a memory address.
	RAM_FLAG = byte(0x40)
	// OP_MASK selects the base operation bits.
	OP_MASK = byte(0x3f)
)

// Register is a register file index.
type Register byte

//go:generate go tool stringer -linecomment -type=Register
const (
	REG_AX = Register(0) // AX
	REG_BX = Register(1) // BX
	REG_CX = Register(2) // CX
	REG_DX = Register(3) // DX
)

// NUM_REGISTERS is the size of the register file.
const NUM_REGISTERS = 4

// opInfo describes the static properties of a base operation.
type opInfo struct {
	name  string
	arity int
	flags byte // flag bits legal on this operation
	jump  bool
}

var opTable = map[Op]opInfo{
	OP_HLT:   {name: "HLT"},
	OP_IN:    {name: "IN"},
	OP_OUT:   {name: "OUT"},
	OP_POP:   {name: "POP", flags: REG_FLAG | RAM_FLAG},
	OP_PUSH:  {name: "PUSH", arity: 1, flags: REG_FLAG | RAM_FLAG},
	OP_ADD:   {name: "ADD"},
	OP_SUB:   {name: "SUB"},
	OP_MUL:   {name: "MUL"},
	OP_DIV:   {name: "DIV"},
	OP_SQRT:  {name: "SQRT"},
	OP_DUP:   {name: "DUP"},
	OP_JMP:   {name: "JMP", arity: 1, jump: true},
	OP_JMPE:  {name: "JMPE", arity: 1, jump: true},
	OP_JMPNE: {name: "JMPNE", arity: 1, jump: true},
	OP_JMPL:  {name: "JMPL", arity: 1, jump: true},
	OP_JMPLE: {name: "JMPLE", arity: 1, jump: true},
	OP_JMPG:  {name: "JMPG", arity: 1, jump: true},
	OP_JMPGE: {name: "JMPGE", arity: 1, jump: true},
	OP_CALL:  {name: "CALL", arity: 1, jump: true},
	OP_RET:   {name: "RET"},
}

var opByName = map[string]Op{}

func init() {
	for op, info := range opTable {
		opByName[info.name] = op
	}
}

// String returns the mnemonic for the base operation.
func (op Op) String() string {
	info, ok := opTable[op]
	if !ok {
		return fmt.Sprintf("Op(%#02x)", byte(op))
	}
	return info.name
}

// OperandKind discriminates the operand variant of a decoded instruction.
type OperandKind int

//go:generate go tool stringer -linecomment -type=OperandKind
const (
	OPERAND_NONE    = OperandKind(0) // none
	OPERAND_REG     = OperandKind(1) // reg
	OPERAND_IMM     = OperandKind(2) // imm
	OPERAND_RAM_IMM = OperandKind(3) // ram-imm
	OPERAND_RAM_REG = OperandKind(4) // ram-reg
	OPERAND_JUMP    = OperandKind(5) // jump
)

// flagBits returns the flag bits that encode this operand kind.
func (kind OperandKind) flagBits() byte {
	switch kind {
	case OPERAND_REG:
		return REG_FLAG
	case OPERAND_RAM_IMM:
		return RAM_FLAG
	case OPERAND_RAM_REG:
		return REG_FLAG | RAM_FLAG
	}
	return 0
}

// Instruction is a single decoded operation with its operand.
type Instruction struct {
	Op   Op
	Kind OperandKind
	Reg  Register
	Imm  float64
	// Delta is a jump displacement relative to the start of this instruction.
	Delta int32
}

// Size returns the encoded length of the instruction in bytes.
func (inst Instruction) Size() (size int32) {
	switch inst.Kind {
	case OPERAND_REG, OPERAND_RAM_REG:
		size = 2
	case OPERAND_IMM, OPERAND_RAM_IMM:
		size = 9
	case OPERAND_JUMP:
		size = 5
	default:
		size = 1
	}
	return
}

// check validates the instruction against the operation table.
func (inst Instruction) check() (err error) {
	info, ok := opTable[inst.Op]
	if !ok {
		err = OpcodeError(byte(inst.Op))
		return
	}

	switch inst.Kind {
	case OPERAND_NONE:
		if info.arity != 0 {
			err = fmt.Errorf("%w: %v", ErrInvalidOperation, f("%v requires an operand", inst.Op))
			return
		}
	case OPERAND_JUMP:
		if !info.jump {
			err = fmt.Errorf("%w: %v", ErrInvalidOperation, f("%v does not take a label", inst.Op))
			return
		}
	default:
		flags := inst.Kind.flagBits()
		if info.jump || flags&^info.flags != 0 || (flags == 0 && info.arity == 0) {
			err = fmt.Errorf("%w: %v", ErrInvalidOperation, f("%v does not take this operand", inst.Op))
			return
		}
		if inst.Kind == OPERAND_REG || inst.Kind == OPERAND_RAM_REG {
			if inst.Reg >= NUM_REGISTERS {
				err = RegisterError(inst.Reg)
				return
			}
		} else if !isFinite(inst.Imm) {
			err = fmt.Errorf("%w: %v", ErrInvalidOperation, f("operand %v is not finite", inst.Imm))
			return
		}
	}

	return
}

// Append encodes the instruction onto image, returning the extended image.
func (inst Instruction) Append(image []byte) (out []byte, err error) {
	err = inst.check()
	if err != nil {
		return
	}

	out = append(image, byte(inst.Op)|inst.Kind.flagBits())

	switch inst.Kind {
	case OPERAND_REG, OPERAND_RAM_REG:
		out = append(out, byte(inst.Reg))
	case OPERAND_IMM, OPERAND_RAM_IMM:
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(inst.Imm))
	case OPERAND_JUMP:
		out = binary.LittleEndian.AppendUint32(out, uint32(inst.Delta))
	}

	return
}

// String returns the assembly rendering of the instruction. Jump targets
// are rendered as the raw delta; callers with a label table substitute
// their own names.
func (inst Instruction) String() (out string) {
	switch inst.Kind {
	case OPERAND_REG:
		out = fmt.Sprintf("%v %v", inst.Op, inst.Reg)
	case OPERAND_IMM:
		out = fmt.Sprintf("%v %g", inst.Op, inst.Imm)
	case OPERAND_RAM_IMM:
		out = fmt.Sprintf("%v [%g]", inst.Op, inst.Imm)
	case OPERAND_RAM_REG:
		out = fmt.Sprintf("%v [%v]", inst.Op, inst.Reg)
	case OPERAND_JUMP:
		out = fmt.Sprintf("%v %+d", inst.Op, inst.Delta)
	default:
		out = inst.Op.String()
	}
	return
}

// Decode reads the instruction at offset in image.
func Decode(image []byte, offset int32) (inst Instruction, err error) {
	if offset < 0 || offset >= int32(len(image)) {
		err = fmt.Errorf("%w: %v", ErrInvalidOperation, f("no instruction at offset %v", offset))
		return
	}

	b := image[offset]
	op := Op(b & OP_MASK)
	flags := b &^ OP_MASK

	info, ok := opTable[op]
	if !ok {
		err = OpcodeError(b)
		return
	}
	if flags&^info.flags != 0 {
		err = OpcodeError(b)
		return
	}

	inst.Op = op
	switch {
	case info.jump:
		inst.Kind = OPERAND_JUMP
	case flags == REG_FLAG:
		inst.Kind = OPERAND_REG
	case flags == RAM_FLAG:
		inst.Kind = OPERAND_RAM_IMM
	case flags == REG_FLAG|RAM_FLAG:
		inst.Kind = OPERAND_RAM_REG
	case info.arity != 0:
		inst.Kind = OPERAND_IMM
	default:
		inst.Kind = OPERAND_NONE
	}

	end := offset + inst.Size()
	if end > int32(len(image)) {
		err = fmt.Errorf("%w: %v", ErrInvalidOperation, f("truncated instruction at offset %v", offset))
		return
	}

	switch inst.Kind {
	case OPERAND_REG, OPERAND_RAM_REG:
		inst.Reg = Register(image[offset+1])
		if inst.Reg >= NUM_REGISTERS {
			err = RegisterError(inst.Reg)
			return
		}
	case OPERAND_IMM, OPERAND_RAM_IMM:
		inst.Imm = math.Float64frombits(binary.LittleEndian.Uint64(image[offset+1 : offset+9]))
		if !isFinite(inst.Imm) {
			err = fmt.Errorf("%w: %v", ErrInvalidOperation, f("operand %v is not finite", inst.Imm))
			return
		}
	case OPERAND_JUMP:
		inst.Delta = int32(binary.LittleEndian.Uint32(image[offset+1 : offset+5]))
	}

	return
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
