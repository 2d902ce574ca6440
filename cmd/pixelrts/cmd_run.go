package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/pixelrts/rtsfile"
	"github.com/gogpu/pixelrts/trace"
	"github.com/gogpu/pixelrts/vm"
)

var runFlags struct {
	seeds         []string
	backend       string
	shader        string
	traceCapacity int
	timeout       time.Duration
	traceOut      string
	traceJSON     string
	heatmapOut    string
	heatmapScale  int
	jsonOut       bool
	showTrace     bool
}

var runCmd = &cobra.Command{
	Use:   "run [image]",
	Short: "Execute a program image on the pixel VM",
	Long: `Loads a program image, executes it once and prints the registers that
are non-zero, the step count and how the run ended.

Example:
  pixelrts run --seed r1=2.5 --seed r2=4 --heatmap heat.png prog.rts.png`,
	Args: cobra.ExactArgs(1),
	RunE: runProgram,
}

func init() {
	f := runCmd.Flags()
	f.StringArrayVar(&runFlags.seeds, "seed", nil, "initial register value rN=value, repeatable")
	f.StringVar(&runFlags.backend, "backend", "", "gpu or software (overrides config)")
	f.StringVar(&runFlags.shader, "shader", "", "WGSL interpreter replacing the embedded one")
	f.IntVar(&runFlags.traceCapacity, "trace-capacity", 0, "step limit and trace size (overrides config)")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "readback timeout (overrides config)")
	f.StringVar(&runFlags.traceOut, "trace", "", "write the trace as CBOR")
	f.StringVar(&runFlags.traceJSON, "trace-json", "", "write the trace as JSON")
	f.StringVar(&runFlags.heatmapOut, "heatmap", "", "write the heatmap as PNG")
	f.IntVar(&runFlags.heatmapScale, "scale", 8, "heatmap pixels per texel")
	f.BoolVar(&runFlags.jsonOut, "json", false, "print the result as JSON")
	f.BoolVar(&runFlags.showTrace, "show-trace", false, "print every trace entry")
}

// parseSeeds parses rN=value pairs.
func parseSeeds(pairs []string) (vm.Seed, error) {
	seed := make(vm.Seed, len(pairs))
	for _, p := range pairs {
		reg, val, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("--seed %q: want rN=value", p)
		}
		reg = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(reg)), "r")
		n, err := strconv.ParseUint(reg, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("--seed %q: register: %w", p, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 32)
		if err != nil {
			return nil, fmt.Errorf("--seed %q: value: %w", p, err)
		}
		seed[uint8(n)] = float32(v)
	}
	return seed, nil
}

func runProgram(cmd *cobra.Command, args []string) error {
	seed, err := parseSeeds(runFlags.seeds)
	if err != nil {
		return err
	}
	if runFlags.backend != "" {
		cfg.VM.Backend = runFlags.backend
	}
	if runFlags.shader != "" {
		cfg.VM.Shader = runFlags.shader
	}
	if runFlags.traceCapacity != 0 {
		cfg.VM.TraceCapacity = runFlags.traceCapacity
	}
	if runFlags.timeout != 0 {
		cfg.VM.ReadbackTimeout = runFlags.timeout.String()
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}

	c, err := rtsfile.Load(args[0])
	if err != nil {
		return err
	}
	eng, err := vm.NewEngine(opts...)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Load(c); err != nil {
		return err
	}
	res, err := eng.Execute(seed)
	if err != nil {
		return err
	}

	if err := writeRunOutputs(res); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if runFlags.jsonOut {
		return writeResultJSON(w, res, eng.DeviceName())
	}
	printResult(w, res, eng.DeviceName())
	return nil
}

func writeRunOutputs(res *vm.Result) error {
	if runFlags.traceOut != "" {
		b, err := trace.Marshal(res.Trace)
		if err != nil {
			return err
		}
		if err := os.WriteFile(runFlags.traceOut, b, 0o644); err != nil { //nolint:gosec // trace exports are ordinary files
			return err
		}
	}
	if runFlags.traceJSON != "" {
		var buf bytes.Buffer
		if err := trace.WriteJSON(&buf, res.Trace); err != nil {
			return err
		}
		if err := os.WriteFile(runFlags.traceJSON, buf.Bytes(), 0o644); err != nil { //nolint:gosec // trace exports are ordinary files
			return err
		}
	}
	if runFlags.heatmapOut != "" {
		var buf bytes.Buffer
		if err := png.Encode(&buf, res.Heatmap.Image(runFlags.heatmapScale)); err != nil {
			return err
		}
		if err := os.WriteFile(runFlags.heatmapOut, buf.Bytes(), 0o644); err != nil { //nolint:gosec // heatmaps are ordinary files
			return err
		}
	}
	return nil
}

func outcome(res *vm.Result) string {
	switch {
	case res.Completed:
		return "halted"
	case res.Fault != nil:
		return "faulted"
	case res.Exhausted():
		return "step limit"
	default:
		return "ran off the end"
	}
}

func printResult(w io.Writer, res *vm.Result, device string) {
	printer.Fprintf(w, "run %s on %s: %s after %d steps\n", res.RunID, device, outcome(res), res.Steps)
	if res.Fault != nil {
		fmt.Fprintf(w, "fault: %s\n", res.Fault)
	}
	for r, v := range res.Registers {
		if v != 0 {
			fmt.Fprintf(w, "r%-3d = %g\n", r, v)
		}
	}
	if runFlags.showTrace {
		for i, e := range res.Trace.Entries {
			fmt.Fprintf(w, "%6d  %s\n", i, e)
		}
	}
}

type resultJSON struct {
	RunID     string         `json:"run_id"`
	Device    string         `json:"device"`
	Outcome   string         `json:"outcome"`
	Completed bool           `json:"completed"`
	Steps     int            `json:"steps"`
	Fault     *trace.Entry   `json:"fault,omitempty"`
	Registers map[string]any `json:"registers"`
}

func writeResultJSON(w io.Writer, res *vm.Result, device string) error {
	out := resultJSON{
		RunID:     res.RunID.String(),
		Device:    device,
		Outcome:   outcome(res),
		Completed: res.Completed,
		Steps:     res.Steps,
		Fault:     res.Fault,
		Registers: make(map[string]any),
	}
	for r, v := range res.Registers {
		if v == 0 {
			continue
		}
		f := float64(v)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			// JSON has no Inf or NaN.
			out.Registers["r"+strconv.Itoa(r)] = strconv.FormatFloat(f, 'g', -1, 32)
			continue
		}
		out.Registers["r"+strconv.Itoa(r)] = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
