// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/stackm/stackm/machine"
)

func main() {
	var asm string
	var disasm string
	var run string
	var output string
	var verbose bool

	flag.StringVar(&asm, "asm", "", "source file to assemble")
	flag.StringVar(&disasm, "disasm", "", "binary file to disassemble")
	flag.StringVar(&run, "run", "", "binary file to execute")
	flag.StringVar(&output, "o", "", "output file (default: input with extension replaced)")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	modes := 0
	for _, mode := range []string{asm, disasm, run} {
		if len(mode) != 0 {
			modes++
		}
	}
	if modes != 1 {
		log.Fatalf("%v: exactly one of -asm, -disasm, -run is required", os.Args[0])
	}

	var err error
	switch {
	case len(asm) != 0:
		err = assemble(asm, defaultOutput(output, asm, ".asm"), verbose)
	case len(disasm) != 0:
		err = disassemble(disasm, defaultOutput(output, disasm, ".txt"), verbose)
	case len(run) != 0:
		err = execute(run, verbose)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(machine.ExitCode(err))
	}
}

// defaultOutput derives the output name from the input name when no
// -o override is given.
func defaultOutput(output, input, ext string) string {
	if len(output) != 0 {
		return output
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}

func assemble(input, output string, verbose bool) (err error) {
	inf, err := os.Open(input)
	if err != nil {
		err = fmt.Errorf("%w: %v", machine.ErrInvalidFile, err)
		return
	}
	defer inf.Close()

	asm := &machine.Assembler{Verbose: verbose}
	image, err := asm.Assemble(inf)
	if err != nil {
		return
	}

	err = os.WriteFile(output, image, 0o644)
	if err != nil {
		err = fmt.Errorf("%w: %v", machine.ErrInvalidFile, err)
	}
	return
}

func disassemble(input, output string, verbose bool) (err error) {
	image, err := os.ReadFile(input)
	if err != nil {
		err = fmt.Errorf("%w: %v", machine.ErrInvalidFile, err)
		return
	}

	ouf, err := os.Create(output)
	if err != nil {
		err = fmt.Errorf("%w: %v", machine.ErrInvalidFile, err)
		return
	}
	defer ouf.Close()

	dis := &machine.Disassembler{Verbose: verbose}
	err = dis.Disassemble(image, ouf)
	return
}

func execute(input string, verbose bool) (err error) {
	image, err := os.ReadFile(input)
	if err != nil {
		err = fmt.Errorf("%w: %v", machine.ErrInvalidFile, err)
		return
	}

	m := machine.NewMachine(image)
	m.Verbose = verbose
	err = m.Run()
	return
}
