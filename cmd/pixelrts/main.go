// Command pixelrts encodes binaries into PixelRTS images, assembles and
// disassembles Geometric ISA programs, and runs them on the pixel VM.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/pixelrts"
)

const defaultConfigPath = "pixelrts.yaml"

var (
	// Global flags
	configPath string
	verbose    bool

	cfg     *Config
	printer = message.NewPrinter(language.English)
)

var rootCmd = &cobra.Command{
	Use:   "pixelrts",
	Short: "PixelRTS images and the pixel VM",
	Long: `pixelrts stores binaries as square RGBA images laid out along a
Hilbert curve, with metadata in a PNG tEXt chunk and a .meta.json sidecar.

Programs are images too: one pixel per instruction. They can be assembled
from text, disassembled, and executed on the GPU with a full execution
trace and a visit heatmap.

Settings are read from pixelrts.yaml in the working directory, or from the
file named by --config. Flags override the file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = LoadConfig(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if verbose && cfg.Logging.Level == "" {
			cfg.Logging.Level = "debug"
		}
		logger, err := cfg.Logger(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		pixelrts.SetLogger(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(encodeCmd, decodeCmd, infoCmd, asmCmd, disasmCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
