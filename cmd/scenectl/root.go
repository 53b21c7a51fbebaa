package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/scene-gateway/internal/directive"
)

var version = "dev"

type options struct {
	format        string
	startMarker   string
	endMarker     string
	overlapPasses int
	labelLocale   string
	known         []string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "scenectl",
		Short: "Extract, repair and validate scene directives offline",
		Long: `scenectl runs the gateway's directive pipeline over captured text.

Examples:
  scenectl extract reply.txt                 # text, block and corrected directive
  scenectl extract --chunk 7 reply.txt       # feed the input in 7-byte deltas
  scenectl repair --format yaml block.json   # close a truncated block
  scenectl validate --known a,b scene.json   # correct a directive against known zones`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.format, "format", "f", "text", "output format: text, json or yaml")
	flags.StringVar(&opts.startMarker, "start-marker", directive.DefaultStartMarker, "block start marker")
	flags.StringVar(&opts.endMarker, "end-marker", directive.DefaultEndMarker, "block end marker")
	flags.IntVar(&opts.overlapPasses, "overlap-passes", 1, "zone overlap resolution passes")
	flags.StringVar(&opts.labelLocale, "label-locale", directive.DefaultLabelLocale, "zone label locale: zh or none")
	flags.StringSliceVar(&opts.known, "known", nil, "zone ids the client already shows")

	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.AddCommand(newExtractCmd(opts), newRepairCmd(opts), newValidateCmd(opts))
	return root
}

func (o *options) validate() error {
	switch o.format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format %q (want text, json or yaml)", o.format)
	}
	if _, ok := directive.LabelsFor(o.labelLocale); !ok {
		return fmt.Errorf("unsupported label locale %q (want one of %s)", o.labelLocale, strings.Join(directive.LabelLocales(), ", "))
	}
	return nil
}

func (o *options) validator() *directive.Validator {
	v := directive.NewValidator(o.overlapPasses)
	v.Labels, _ = directive.LabelsFor(o.labelLocale)
	return v
}

// readInput reads the named file, or stdin when the name is "-" or absent.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(b), nil
}
