// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package machine

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
)

// EPSILON is the tolerance for floating point equality in the
// conditional jumps.
const EPSILON = 1e-9

// Machine executes a binary image against an operand stack, a call
// stack, four registers, and RAM.
type Machine struct {
	Verbose bool      // If set, verbosely logs each execution step.
	Input   io.Reader // Source for the IN operation.
	Output  io.Writer // Sink for OUT and the input prompt.
	Ram     Ram

	PC    int32
	Steps int

	image    []byte
	stack    Stack[float64]
	calls    Stack[int32]
	register [NUM_REGISTERS]float64
}

// NewMachine creates a machine for the given image, wired to the
// standard streams.
func NewMachine(image []byte) (m *Machine) {
	m = &Machine{
		Input:  os.Stdin,
		Output: os.Stdout,
		image:  image,
	}
	m.Ram.Delay = RAM_DELAY
	return
}

// Register returns the current value of a register.
func (m *Machine) Register(reg Register) (value float64, err error) {
	if reg >= NUM_REGISTERS {
		err = RegisterError(reg)
		return
	}
	value = m.register[reg]
	return
}

// Depth returns the operand stack depth.
func (m *Machine) Depth() int {
	return m.stack.Depth()
}

// Run executes the image from offset zero until HLT or the first
// error. Running past the final instruction without a HLT is an
// error.
func (m *Machine) Run() (err error) {
	m.PC = 0
	m.Steps = 0
	m.stack.Reset()
	m.calls.Reset()
	m.register = [NUM_REGISTERS]float64{}
	m.Ram.Reset()

	input := bufio.NewReader(m.Input)

	for {
		var inst Instruction
		inst, err = Decode(m.image, m.PC)
		if err != nil {
			return
		}

		if m.Verbose {
			log.Printf("%08x: %v\n", m.PC, inst)
		}

		next := m.PC + inst.Size()
		m.Steps++

		var halt bool
		halt, err = m.execute(inst, &next, input)
		if err != nil {
			return
		}

		m.PC = next
		if halt {
			return
		}
	}
}

// execute performs one instruction. next arrives as the offset past
// the instruction and leaves as the next PC.
func (m *Machine) execute(inst Instruction, next *int32, input io.Reader) (halt bool, err error) {
	switch inst.Op {
	case OP_HLT:
		halt = true

	case OP_IN:
		var value float64
		fmt.Fprint(m.Output, "> ")
		_, err = fmt.Fscan(input, &value)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidFile, f("read input: %v", err))
			return
		}
		m.stack.Push(value)

	case OP_OUT:
		var value float64
		value, err = m.pop()
		if err != nil {
			return
		}
		fmt.Fprintf(m.Output, "%g\n", value)

	case OP_POP:
		var value float64
		value, err = m.pop()
		if err != nil {
			return
		}
		switch inst.Kind {
		case OPERAND_REG:
			m.register[inst.Reg] = value
		case OPERAND_RAM_IMM:
			err = m.Ram.SetAt(inst.Imm, value)
		case OPERAND_RAM_REG:
			err = m.Ram.SetAt(m.register[inst.Reg], value)
		}

	case OP_PUSH:
		var value float64
		switch inst.Kind {
		case OPERAND_IMM:
			value = inst.Imm
		case OPERAND_REG:
			value = m.register[inst.Reg]
		case OPERAND_RAM_IMM:
			value, err = m.Ram.GetAt(inst.Imm)
		case OPERAND_RAM_REG:
			value, err = m.Ram.GetAt(m.register[inst.Reg])
		}
		if err != nil {
			return
		}
		m.stack.Push(value)

	case OP_ADD:
		err = m.binary(func(lhs, rhs float64) float64 { return lhs + rhs })

	case OP_SUB:
		err = m.binary(func(lhs, rhs float64) float64 { return lhs - rhs })

	case OP_MUL:
		err = m.binary(func(lhs, rhs float64) float64 { return lhs * rhs })

	case OP_DIV:
		err = m.binary(func(lhs, rhs float64) float64 { return lhs / rhs })

	case OP_SQRT:
		var value float64
		value, err = m.pop()
		if err != nil {
			return
		}
		m.stack.Push(math.Sqrt(value))

	case OP_DUP:
		value, ok := m.stack.Peek()
		if !ok {
			err = fmt.Errorf("%w: %v", ErrStackUnderflow, f("%v on empty stack", inst.Op))
			return
		}
		m.stack.Push(value)

	case OP_JMP:
		err = m.branch(inst, next)

	case OP_JMPE, OP_JMPNE, OP_JMPL, OP_JMPLE, OP_JMPG, OP_JMPGE:
		var lhs, rhs float64
		lhs, rhs, err = m.pop2()
		if err != nil {
			return
		}
		if compare(inst.Op, lhs, rhs) {
			err = m.branch(inst, next)
		}

	case OP_CALL:
		m.calls.Push(*next)
		err = m.branch(inst, next)

	case OP_RET:
		target, ok := m.calls.Pop()
		if !ok {
			err = fmt.Errorf("%w: %v", ErrStackUnderflow, f("%v on empty call stack", inst.Op))
			return
		}
		*next = target

	default:
		err = OpcodeError(byte(inst.Op))
	}

	return
}

// compare evaluates a conditional jump predicate.
func compare(op Op, lhs, rhs float64) (taken bool) {
	switch op {
	case OP_JMPE:
		taken = math.Abs(lhs-rhs) < EPSILON
	case OP_JMPNE:
		taken = math.Abs(lhs-rhs) >= EPSILON
	case OP_JMPL:
		taken = lhs < rhs
	case OP_JMPLE:
		taken = lhs <= rhs
	case OP_JMPG:
		taken = lhs > rhs
	case OP_JMPGE:
		taken = lhs >= rhs
	}
	return
}

// branch redirects next to the jump target. The displacement is
// relative to the instruction start.
func (m *Machine) branch(inst Instruction, next *int32) (err error) {
	target := *next + inst.Delta - inst.Size()
	if target < 0 || target >= int32(len(m.image)) {
		err = fmt.Errorf("%w: %v", ErrInvalidOperation, f("jump target %v outside image", target))
		return
	}
	*next = target
	return
}

// binary pops two operands and pushes op(lhs, rhs).
func (m *Machine) binary(op func(lhs, rhs float64) float64) (err error) {
	lhs, rhs, err := m.pop2()
	if err != nil {
		return
	}
	m.stack.Push(op(lhs, rhs))
	return
}

func (m *Machine) pop() (value float64, err error) {
	value, ok := m.stack.Pop()
	if !ok {
		err = fmt.Errorf("%w: %v", ErrStackUnderflow, f("pop on empty stack"))
	}
	return
}

// pop2 pops the right operand first.
func (m *Machine) pop2() (lhs, rhs float64, err error) {
	rhs, err = m.pop()
	if err != nil {
		return
	}
	lhs, err = m.pop()
	return
}
