package machine

import (
	"bufio"
	"fmt"
	"io"
	"log"
)

// lineRecord is one rendered instruction and its encoded size.
type lineRecord struct {
	text string
	size int32
}

// Disassembler reconstructs source text from a binary image,
// synthesizing labels for jump targets.
type Disassembler struct {
	Verbose bool // If set, verbosely logs the disassembler actions.

	lines  []lineRecord
	labels map[int32]string
}

// Disassemble decodes image and writes source text to output.
func (dis *Disassembler) Disassemble(image []byte, output io.Writer) (err error) {
	dis.lines = dis.lines[:0]
	dis.labels = make(map[int32]string, 16)

	size := int32(len(image))
	var offset int32
	for offset < size {
		var inst Instruction
		inst, err = Decode(image, offset)
		if err != nil {
			return
		}

		next := offset + inst.Size()
		var text string
		text, err = dis.render(inst, next, size)
		if err != nil {
			return
		}

		if dis.Verbose {
			log.Printf("%08x: %v\n", offset, text)
		}

		dis.lines = append(dis.lines, lineRecord{text: text, size: inst.Size()})
		offset = next
	}

	err = dis.flush(output, size)
	return
}

// render formats one instruction, naming the jump target if any.
// next is the offset just past the instruction.
func (dis *Disassembler) render(inst Instruction, next int32, size int32) (text string, err error) {
	if inst.Kind != OPERAND_JUMP {
		text = inst.String()
		return
	}

	// The displacement is relative to the instruction start. A
	// target exactly at the image end is legal; it names the point
	// just past the last instruction.
	target := next + inst.Delta - inst.Size()
	if target < 0 || target > size {
		err = fmt.Errorf("%w: %v", ErrInvalidLabel, f("jump target %v outside image", target))
		return
	}

	name, ok := dis.labels[target]
	if !ok {
		name = fmt.Sprintf("L%d", len(dis.labels))
		dis.labels[target] = name
	}

	text = fmt.Sprintf("%v %v", inst.Op, name)
	return
}

// flush writes the buffered lines, interleaving label definitions at
// their offsets. A label inside an instruction cannot be placed.
func (dis *Disassembler) flush(output io.Writer, size int32) (err error) {
	w := bufio.NewWriter(output)

	placed := 0
	var offset int32
	for _, line := range dis.lines {
		if name, ok := dis.labels[offset]; ok {
			fmt.Fprintf(w, "%v:\n", name)
			placed++
		}
		fmt.Fprintf(w, "%v\n", line.text)
		offset += line.size
	}
	if name, ok := dis.labels[size]; ok {
		fmt.Fprintf(w, "%v:\n", name)
		placed++
	}

	if placed != len(dis.labels) {
		err = fmt.Errorf("%w: %v", ErrInvalidLabel, f("jump target inside an instruction"))
		return
	}

	err = w.Flush()
	return
}
