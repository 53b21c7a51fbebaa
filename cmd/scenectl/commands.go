package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/scene-gateway/internal/directive"
	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// Result is what every subcommand prints.
type Result struct {
	Text      string            `json:"text,omitempty"`
	Block     string            `json:"block,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
	Repaired  bool              `json:"repaired,omitempty"`
	Directive *domain.Directive `json:"directive,omitempty"`
	Problem   string            `json:"problem,omitempty"`
}

func newExtractCmd(opts *options) *cobra.Command {
	var chunk int

	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Split model output into prose and a corrected directive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res := extract(input, chunk, opts)
			return render(cmd.OutOrStdout(), opts.format, res)
		},
	}
	cmd.Flags().IntVar(&chunk, "chunk", 0, "feed the input in deltas of this many bytes (0 feeds it whole)")
	return cmd
}

func newRepairCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repair [file]",
		Short: "Parse a block body, closing it first if it was cut off",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res := Result{Block: input}
			d, ok := directive.Parse(input)
			if !ok {
				d, ok = directive.Repair(input)
				res.Repaired = ok
			}
			if !ok {
				return errors.New("block could not be repaired")
			}
			res.Directive = d
			return render(cmd.OutOrStdout(), opts.format, res)
		},
	}
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Correct a directive's ranges, references and overlaps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			d, ok := directive.Parse(input)
			if !ok {
				return errors.New("input is not a directive")
			}
			out, ok := opts.validator().Validate(d, opts.known)
			if !ok {
				return errors.New("directive has no valid vizState")
			}
			return render(cmd.OutOrStdout(), opts.format, Result{Directive: out})
		},
	}
}

// extract runs the same stages the relay runs on a live stream.
func extract(input string, chunk int, opts *options) Result {
	ex := directive.NewExtractor(opts.startMarker, opts.endMarker)

	var res Result
	var text []byte
	var block *string
	collect := func(segs []directive.Segment) {
		for _, s := range segs {
			switch s.Kind {
			case directive.SegmentText:
				text = append(text, s.Text...)
			case directive.SegmentBlock:
				body := s.Text
				block = &body
			}
		}
	}

	if chunk <= 0 {
		chunk = len(input)
	}
	for i := 0; i < len(input); i += chunk {
		collect(ex.Feed(input[i:min(i+chunk, len(input))]))
	}
	tail, truncated := ex.Finish()
	collect(tail)
	res.Text = string(text)

	var d *domain.Directive
	var ok bool
	switch {
	case block != nil:
		res.Block = *block
		d, ok = directive.Parse(*block)
		if !ok {
			res.Problem = "block is not valid JSON"
			return res
		}
	case truncated != nil:
		res.Block = *truncated
		res.Truncated = true
		d, ok = directive.Repair(*truncated)
		if !ok {
			res.Problem = "truncated block could not be repaired"
			return res
		}
		res.Repaired = true
	default:
		res.Problem = "no directive block found"
		return res
	}

	out, ok := opts.validator().Validate(d, opts.known)
	if !ok {
		res.Problem = "directive has no valid vizState"
		return res
	}
	res.Directive = out
	return res
}
