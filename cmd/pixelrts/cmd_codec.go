package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/pixelrts"
	"github.com/gogpu/pixelrts/rtsfile"
)

// Suffix of images written by encode and asm.
const imageSuffix = ".rts.png"

var encodeFlags struct {
	output      string
	entry       string
	order       int
	compress    bool
	name        string
	contentType string
	version     string
	segments    []string
}

var encodeCmd = &cobra.Command{
	Use:   "encode [file...]",
	Short: "Encode binaries as PixelRTS images",
	Long: `Encodes each file as <file>.rts.png with a <file>.rts.meta.json sidecar.
Files are encoded concurrently.

Example:
  pixelrts encode --entry 0x100000 --segment kernel=0:4096:kernel vmlinux`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEncode,
}

var decodeFlags struct {
	output  string
	segment string
	lenient bool
}

var decodeCmd = &cobra.Command{
	Use:   "decode [image]",
	Short: "Recover the payload of a PixelRTS image",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecode,
}

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info [image...]",
	Short: "Show the metadata of PixelRTS images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInfo,
}

func init() {
	f := encodeCmd.Flags()
	f.StringVarP(&encodeFlags.output, "output", "o", "", "output image (single input only)")
	f.StringVar(&encodeFlags.entry, "entry", "", "entry point address, e.g. 0x100000")
	f.IntVar(&encodeFlags.order, "order", 0, "grid order (default: smallest that fits)")
	f.BoolVar(&encodeFlags.compress, "compress", false, "zstd-compress the payload")
	f.StringVar(&encodeFlags.name, "name", "", "content name (default: file name)")
	f.StringVar(&encodeFlags.contentType, "type", "", "content type")
	f.StringVar(&encodeFlags.version, "content-version", "", "content version")
	f.StringArrayVar(&encodeFlags.segments, "segment", nil, "named segment name=start:end[:type], repeatable")

	f = decodeCmd.Flags()
	f.StringVarP(&decodeFlags.output, "output", "o", "", "output file (default: image name without .rts.png)")
	f.StringVar(&decodeFlags.segment, "segment", "", "write only this segment")
	f.BoolVar(&decodeFlags.lenient, "lenient", false, "return data even when hashes do not match")

	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "print the raw metadata JSON")
}

func runEncode(cmd *cobra.Command, args []string) error {
	if encodeFlags.output != "" && len(args) > 1 {
		return errors.New("--output needs a single input")
	}
	opts := cfg.EncodeOptions()
	if encodeFlags.compress {
		opts = append(opts, pixelrts.WithCompression(pixelrts.CompressionZstd))
	}
	if encodeFlags.order != 0 {
		opts = append(opts, pixelrts.WithOrder(encodeFlags.order))
	}
	if encodeFlags.entry != "" {
		addr, err := strconv.ParseUint(encodeFlags.entry, 0, 64)
		if err != nil {
			return fmt.Errorf("--entry: %w", err)
		}
		opts = append(opts, pixelrts.WithEntryPoint(addr))
	}
	for _, s := range encodeFlags.segments {
		seg, err := parseSegmentFlag(s)
		if err != nil {
			return err
		}
		opts = append(opts, seg)
	}
	if encodeFlags.contentType != "" {
		opts = append(opts, pixelrts.WithContentType(encodeFlags.contentType))
	}
	if encodeFlags.version != "" {
		opts = append(opts, pixelrts.WithContentVersion(encodeFlags.version))
	}

	type job struct {
		in, out string
		c       *pixelrts.Container
		size    int
	}
	jobs := make([]job, len(args))
	for i, in := range args {
		out := encodeFlags.output
		if out == "" {
			out = in + imageSuffix
		}
		jobs[i] = job{in: in, out: out}
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	workers := cfg.Encode.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for i := range jobs {
		j := &jobs[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(j.in)
			if err != nil {
				return err
			}
			name := encodeFlags.name
			if name == "" {
				name = filepath.Base(j.in)
			}
			c, err := pixelrts.Encode(data, append(slices.Clip(opts), pixelrts.WithName(name))...)
			if err != nil {
				return fmt.Errorf("%s: %w", j.in, err)
			}
			if err := rtsfile.Save(j.out, c); err != nil {
				return fmt.Errorf("%s: %w", j.out, err)
			}
			j.c, j.size = c, len(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, j := range jobs {
		printer.Fprintf(w, "%s -> %s: %d bytes, %dx%d grid\n", j.in, j.out, j.size, j.c.Side(), j.c.Side())
	}
	return nil
}

// parseSegmentFlag parses name=start:end[:type].
func parseSegmentFlag(s string) (pixelrts.EncodeOption, error) {
	name, rng, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return nil, fmt.Errorf("--segment %q: want name=start:end[:type]", s)
	}
	parts := strings.Split(rng, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("--segment %q: want name=start:end[:type]", s)
	}
	start, err := strconv.ParseInt(parts[0], 0, 0)
	if err != nil {
		return nil, fmt.Errorf("--segment %q: start: %w", s, err)
	}
	end, err := strconv.ParseInt(parts[1], 0, 0)
	if err != nil {
		return nil, fmt.Errorf("--segment %q: end: %w", s, err)
	}
	kind := ""
	if len(parts) == 3 {
		kind = parts[2]
	}
	return pixelrts.WithSegment(name, int(start), int(end), kind), nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	c, err := rtsfile.Load(args[0])
	if err != nil {
		return err
	}
	var opts []pixelrts.DecodeOption
	if decodeFlags.lenient {
		opts = append(opts, pixelrts.Lenient())
	}
	dec, err := pixelrts.Decode(c, opts...)
	if err != nil {
		return err
	}

	w := cmd.ErrOrStderr()
	if dec.Degraded {
		fmt.Fprintf(w, "warning: no usable metadata (%v); output is the raw grid\n", dec.MetadataErr)
	}
	if dec.IntegrityFailed {
		fmt.Fprintf(w, "warning: %v\n", dec.Integrity)
	}

	data := dec.Data
	if decodeFlags.segment != "" {
		if data, err = dec.Segment(decodeFlags.segment); err != nil {
			return err
		}
	}
	out := decodeFlags.output
	if out == "" {
		out = strings.TrimSuffix(strings.TrimSuffix(args[0], ".png"), ".rts")
		if out == args[0] {
			out += ".bin"
		}
	}
	if err := os.WriteFile(out, data, 0o644); err != nil { //nolint:gosec // decoded payloads are ordinary files
		return err
	}
	printer.Fprintf(cmd.OutOrStdout(), "%s: %d bytes\n", out, len(data))
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	for _, path := range args {
		c, err := rtsfile.Load(path)
		if err != nil {
			return err
		}
		if !c.HasMetadata() {
			fmt.Fprintf(w, "%s: %dx%d grid, no metadata", path, c.Side(), c.Side())
			if err := c.MetadataErr(); err != nil {
				fmt.Fprintf(w, " (%v)", err)
			}
			fmt.Fprintln(w)
			continue
		}
		meta := c.Metadata()
		if infoJSON {
			b, err := json.MarshalIndent(meta, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n", b)
			continue
		}

		fmt.Fprintf(w, "%s:\n", path)
		fmt.Fprintf(w, "  format:      %s (version %d)\n", meta.Format, meta.FormatVersion)
		fmt.Fprintf(w, "  grid:        %dx%d (order %d)\n", c.Side(), c.Side(), c.Order())
		fmt.Fprintf(w, "  encoding:    %s", meta.Encoding.Type)
		if meta.Encoding.Compression != "" {
			printer.Fprintf(w, ", %s (%d bytes stored)", meta.Encoding.Compression, meta.Encoding.StoredSize)
		}
		fmt.Fprintln(w)
		printer.Fprintf(w, "  size:        %d bytes\n", meta.DataSize)
		fmt.Fprintf(w, "  sha256:      %s\n", meta.DataHash)
		if meta.Name != "" {
			fmt.Fprintf(w, "  name:        %s\n", meta.Name)
		}
		if meta.EntryPoint != "" {
			fmt.Fprintf(w, "  entry point: %s\n", meta.EntryPoint)
		}
		if meta.InstructionCount > 0 {
			printer.Fprintf(w, "  program:     %d instructions\n", meta.InstructionCount)
		}
		names := make([]string, 0, len(meta.Segments))
		for name := range meta.Segments {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			seg := meta.Segments[name]
			printer.Fprintf(w, "  segment %-12s [%d, %d) %s\n", name, seg.Start, seg.End, seg.Type)
		}
	}
	return nil
}
