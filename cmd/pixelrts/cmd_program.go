package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/pixelrts/isa"
	"github.com/gogpu/pixelrts/rtsfile"
)

var asmFlags struct {
	output string
	entry  int
	name   string
}

var asmCmd = &cobra.Command{
	Use:   "asm [source]",
	Short: "Assemble a Geometric ISA program into an image",
	Long: `Assembles one instruction per line into a program image.

Example source:
  ; r3 = r1 + r2
        LDI r1, 10
        LDI r2, 20
        ADD r3, r1, r2
  loop: JMP loop`,
	Args: cobra.ExactArgs(1),
	RunE: runAsm,
}

var disasmCmd = &cobra.Command{
	Use:   "disasm [image]",
	Short: "Print the instructions of a program image",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisasm,
}

func init() {
	f := asmCmd.Flags()
	f.StringVarP(&asmFlags.output, "output", "o", "", "output image (default: <source>.rts.png)")
	f.IntVar(&asmFlags.entry, "entry", -1, "entry instruction index (default: 0)")
	f.StringVar(&asmFlags.name, "name", "", "program name (default: source file name)")
}

func runAsm(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	instrs, err := isa.Parse(string(src))
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	name := asmFlags.name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}
	opts := []isa.AssembleOption{isa.WithProgramName(name)}
	if asmFlags.entry >= 0 {
		opts = append(opts, isa.WithEntry(uint64(asmFlags.entry)))
	}
	c, err := isa.Assemble(instrs, opts...)
	if err != nil {
		return err
	}

	out := asmFlags.output
	if out == "" {
		out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + imageSuffix
	}
	if err := rtsfile.Save(out, c); err != nil {
		return err
	}
	printer.Fprintf(cmd.OutOrStdout(), "%s: %d instructions, %dx%d grid\n", out, len(instrs), c.Side(), c.Side())
	return nil
}

func runDisasm(cmd *cobra.Command, args []string) error {
	c, err := rtsfile.Load(args[0])
	if err != nil {
		return err
	}
	instrs, err := isa.Disassemble(c)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if entry := c.EntryPoint(); entry != 0 {
		fmt.Fprintf(w, "; entry %d\n", entry)
	}
	fmt.Fprint(w, isa.Format(instrs))
	return nil
}
