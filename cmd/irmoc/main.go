// Command irmoc compiles a text interface description into Irmo's
// binary schema blob or a C byte array, the Go-native replacement for
// original_source/tools/interface-compiler.c (§6 of the schema
// compiler CLI spec). Flag parsing uses github.com/spf13/cobra, since
// the teacher's own main functions are flag-free single-purpose
// binaries with nothing to ground a CLI framework on; cobra is adopted
// from orbas1-Synnergy, the only pack repo with one. Diagnostics use
// github.com/rs/zerolog, the teacher's own logger in src/logger.go and
// ws/internal/shared/monitoring/logger.go.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/irmosync/irmo/internal/ifacetext"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

func main() {
	var (
		outputFile string
		format     string
		arrayName  string
	)

	root := &cobra.Command{
		Use:          "irmoc <interface-file>",
		Short:        "Compile an Irmo text interface description into a binary schema blob or C array",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return compile(args[0], outputFile, format, arrayName)
		},
	}

	root.Flags().StringVarP(&outputFile, "output", "o", "interface.out", "output filename")
	root.Flags().StringVarP(&format, "format", "f", "binary", "output format: binary|carray")
	root.Flags().StringVarP(&arrayName, "array-name", "a", "", "C array name (carray format only, default derived from input filename)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func compile(inputFile, outputFile, format, arrayName string) error {
	src, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s:%s\n", inputFile, err)
		os.Exit(1)
	}

	iface, err := ifacetext.Parse(src)
	if err != nil {
		// §6: "diagnostic on stderr in <file>:<message> format."
		fmt.Fprintf(os.Stderr, "%s:%s\n", inputFile, err)
		os.Exit(1)
	}

	blob, err := iface.Dump()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s:%s\n", inputFile, err)
		os.Exit(1)
	}

	switch format {
	case "binary":
		if err := os.WriteFile(outputFile, blob, 0644); err != nil {
			return err
		}
	case "carray":
		name := arrayName
		if name == "" {
			name = ifacetext.DefaultArrayName(inputFile)
		}
		if err := os.WriteFile(outputFile, ifacetext.WriteCArray(name, blob), 0644); err != nil {
			return err
		}
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown output format %q\n", inputFile, format)
		os.Exit(1)
	}

	log.Info().
		Str("input", inputFile).
		Str("output", outputFile).
		Str("format", format).
		Int("classes", iface.NumClasses()).
		Int("methods", iface.NumMethods()).
		Msg("compiled interface")

	return nil
}
