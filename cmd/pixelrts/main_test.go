package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gogpu/pixelrts"
	"github.com/gogpu/pixelrts/rtsfile"
	"github.com/gogpu/pixelrts/trace"
	"github.com/gogpu/pixelrts/vm"
)

// resetFlags restores every flag of c and its subcommands to its default,
// since the command tree is shared between tests.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// pixelrtsCmd runs the CLI with args and returns stdout.
func pixelrtsCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { pixelrts.SetLogger(nil) })

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := pixelrtsCmd(t, args...)
	if err != nil {
		t.Fatalf("pixelrts %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// =============================================================================
// Codec commands
// =============================================================================

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
	}{
		{"plain", nil},
		{"compressed", []string{"--compress"}},
		{"entry and segment", []string{"--entry", "0x10", "--segment", "head=0:16:header"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			payload := bytes.Repeat([]byte("pixelrts payload "), 40)
			in := writeFile(t, dir, "blob.bin", payload)

			mustRun(t, append(append([]string{"encode"}, tt.flags...), in)...)
			img := in + imageSuffix
			out := filepath.Join(dir, "out.bin")
			mustRun(t, "decode", "-o", out, img)

			got, err := os.ReadFile(out)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("decoded %d bytes, want the %d-byte payload", len(got), len(payload))
			}
		})
	}
}

func TestDecodeSegment(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "blob.bin", []byte("HEADERbody bytes"))
	mustRun(t, "encode", "--segment", "head=0:6", in)

	out := filepath.Join(dir, "head.bin")
	mustRun(t, "decode", "--segment", "head", "-o", out, in+imageSuffix)
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "HEADER" {
		t.Errorf("segment = %q, want HEADER", got)
	}
}

func TestEncodeMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for i, s := range []string{"alpha", "beta", "gamma", "delta"} {
		inputs = append(inputs, writeFile(t, dir, s, bytes.Repeat([]byte{byte(i)}, 100*(i+1))))
	}
	out := mustRun(t, append([]string{"encode"}, inputs...)...)

	for _, in := range inputs {
		c, err := rtsfile.Load(in + imageSuffix)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", in, err)
		}
		if name := c.Metadata().Name; name != filepath.Base(in) {
			t.Errorf("name = %q, want %q", name, filepath.Base(in))
		}
		if !strings.Contains(out, in) {
			t.Errorf("output does not mention %s", in)
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", []byte("a"))
	b := writeFile(t, dir, "b", []byte("b"))

	tests := []struct {
		name string
		args []string
	}{
		{"output with two inputs", []string{"encode", "-o", "x.png", a, b}},
		{"missing input", []string{"encode", filepath.Join(dir, "missing")}},
		{"bad entry", []string{"encode", "--entry", "zz", a}},
		{"bad segment", []string{"encode", "--segment", "nope", a}},
		{"segment out of range", []string{"encode", "--segment", "s=0:99", a}},
		{"order too small", []string{"encode", "--order", "2", a}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := pixelrtsCmd(t, tt.args...); err == nil {
				t.Errorf("pixelrts %v: error = nil", tt.args)
			}
		})
	}
}

func TestInfo(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "kernel", make([]byte, 5000))
	mustRun(t, "encode", "--entry", "0x100000", "--segment", "text=0:4096:code", in)

	out := mustRun(t, "info", in+imageSuffix)
	for _, want := range []string{
		"PixelRTS-2.0",
		"64x64",
		"5,000 bytes",
		"entry point: 0x100000",
		"segment text",
		pixelrts.Hash(make([]byte, 5000)),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "info", "--json", in+imageSuffix)
	var meta pixelrts.Metadata
	if err := json.Unmarshal([]byte(out), &meta); err != nil {
		t.Fatalf("info --json is not metadata: %v", err)
	}
	if meta.DataSize != 5000 {
		t.Errorf("data_size = %d, want 5000", meta.DataSize)
	}
}

// =============================================================================
// Program commands
// =============================================================================

const addSource = `; r3 = r1 + r2
	LDI r1, 10
	LDI r2, 20
	ADD r3, r1, r2
	HALT
`

func TestAsmDisasm(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "add.asm", []byte(addSource))

	mustRun(t, "asm", src)
	out := mustRun(t, "disasm", filepath.Join(dir, "add"+imageSuffix))

	want := "LDI r1, 10\nLDI r2, 20\nADD r3, r1, r2\nHALT\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("disasm mismatch (-want +got):\n%s", diff)
	}
}

func TestAsmSyntaxError(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "bad.asm", []byte("LDI r1, 10\nFROB r2\n"))
	_, err := pixelrtsCmd(t, "asm", src)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("asm error = %v, want a line 2 error", err)
	}
}

func TestRunSoftware(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "add.asm", []byte(addSource))
	img := filepath.Join(dir, "prog"+imageSuffix)
	mustRun(t, "asm", "-o", img, src)

	tracePath := filepath.Join(dir, "trace.cbor")
	heatPath := filepath.Join(dir, "heat.png")
	out := mustRun(t, "run", "--backend", "software", "--json",
		"--trace", tracePath, "--heatmap", heatPath, "--scale", "4", img)

	var res resultJSON
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("run --json output: %v\n%s", err, out)
	}
	if res.Outcome != "halted" || !res.Completed || res.Steps != 4 {
		t.Errorf("outcome=%s completed=%v steps=%d, want halted true 4", res.Outcome, res.Completed, res.Steps)
	}
	if res.Registers["r3"] != 30.0 {
		t.Errorf("r3 = %v, want 30", res.Registers["r3"])
	}
	if res.Device != "software" {
		t.Errorf("device = %q, want software", res.Device)
	}

	b, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := trace.Unmarshal(b)
	if err != nil {
		t.Fatalf("trace.Unmarshal() error = %v", err)
	}
	if len(tr.Entries) != 4 || !tr.Completed() {
		t.Errorf("trace has %d entries, completed %v", len(tr.Entries), tr.Completed())
	}
	if _, err := os.Stat(heatPath); err != nil {
		t.Errorf("heatmap not written: %v", err)
	}
}

func TestRunSeedsAndLimit(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "loop.asm", []byte("loop: ADD r1, r1, r2\n JMP loop\n"))
	img := filepath.Join(dir, "loop"+imageSuffix)
	mustRun(t, "asm", "-o", img, src)

	out := mustRun(t, "run", "--backend", "software", "--trace-capacity", "10",
		"--seed", "r2=0.5", img)
	for _, want := range []string{"step limit after 10 steps", "r1   = 2.5", "r2   = 0.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("run output missing %q:\n%s", want, out)
		}
	}
}

func TestRunRejectsDataImage(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "data", []byte("not code"))
	mustRun(t, "encode", in)
	if _, err := pixelrtsCmd(t, "run", "--backend", "software", in+imageSuffix); err == nil {
		t.Error("run on a data image: error = nil")
	}
}

// =============================================================================
// Flag parsing
// =============================================================================

func TestParseSeeds(t *testing.T) {
	tests := []struct {
		in      []string
		want    vm.Seed
		wantErr bool
	}{
		{nil, vm.Seed{}, false},
		{[]string{"r1=2.5", "R255=-1"}, vm.Seed{1: 2.5, 255: -1}, false},
		{[]string{"7=3"}, vm.Seed{7: 3}, false},
		{[]string{"r256=1"}, nil, true},
		{[]string{"r1"}, nil, true},
		{[]string{"r1=x"}, nil, true},
	}
	for _, tt := range tests {
		got, err := parseSeeds(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSeeds(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr {
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseSeeds(%v) mismatch (-want +got):\n%s", tt.in, diff)
			}
		}
	}
}

func TestParseSegmentFlag(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"kernel=0:4096", false},
		{"kernel=0x0:0x1000:code", false},
		{"kernel", true},
		{"=0:1", true},
		{"k=0", true},
		{"k=0:1:a:b", true},
		{"k=a:1", true},
		{"k=0:b", true},
	}
	for _, tt := range tests {
		_, err := parseSegmentFlag(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSegmentFlag(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

// =============================================================================
// Configuration
// =============================================================================

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pixelrts.yaml", []byte(`
encode:
  compress: true
  workers: 2
vm:
  backend: software
  trace_capacity: 500
  readback_timeout: 2s
logging:
  level: info
  format: json
`))

	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	want.Encode = EncodeConfig{Compress: true, Workers: 2}
	want.VM.Backend = "software"
	want.VM.TraceCapacity = 500
	want.VM.ReadbackTimeout = "2s"
	want.Logging = LoggingConfig{Level: "info", Format: "json"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("LoadConfig() mismatch (-want +got):\n%s", diff)
	}

	if _, err := cfg.EngineOptions(); err != nil {
		t.Errorf("EngineOptions() error = %v", err)
	}
	if got := len(cfg.EncodeOptions()); got != 1 {
		t.Errorf("EncodeOptions() has %d options, want 1", got)
	}
	if l, err := cfg.Logger(&bytes.Buffer{}); err != nil || l == nil {
		t.Errorf("Logger() = %v, %v", l, err)
	}
}

func TestLoadConfigMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")
	cfg, err := LoadConfig(missing, false)
	if err != nil {
		t.Fatalf("LoadConfig(implicit) error = %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if _, err := LoadConfig(missing, true); err == nil {
		t.Error("LoadConfig(explicit missing) error = nil")
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
		call func(*Config) error
	}{
		{"backend", func(c *Config) { c.VM.Backend = "quantum" }, func(c *Config) error { _, err := c.EngineOptions(); return err }},
		{"timeout", func(c *Config) { c.VM.ReadbackTimeout = "soon" }, func(c *Config) error { _, err := c.EngineOptions(); return err }},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, func(c *Config) error { _, err := c.Logger(&bytes.Buffer{}); return err }},
		{"format", func(c *Config) { c.Logging.Level, c.Logging.Format = "info", "xml" }, func(c *Config) error { _, err := c.Logger(&bytes.Buffer{}); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.edit(c)
			if err := tt.call(c); err == nil {
				t.Error("error = nil")
			}
		})
	}

	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", []byte("vm: [unclosed"))
	if _, err := LoadConfig(bad, true); err == nil {
		t.Error("LoadConfig(bad yaml) error = nil")
	}
}
