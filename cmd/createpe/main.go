package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wanglei-coder/createpe/internal/descriptor"
)

type options struct {
	verbose bool
	summary bool
	json    bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "createpe <descriptor> <output>",
		Short:         "Build a minimal 32-bit Windows executable from a descriptor",
		Args:          cobra.ExactArgs(2),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.verbose)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			return run(cmd.OutOrStdout(), logger, args[0], args[1], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every layout decision")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "print the section table and the image digests")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the summary as JSON")

	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.DisableStacktrace = true
	if !verbose {
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return config.Build()
}

func run(w io.Writer, logger *zap.Logger, descriptorPath, outputPath string, opts options) error {
	d, err := descriptor.Load(descriptorPath)
	if err != nil {
		return err
	}

	warnings, err := d.Validate()
	for _, warning := range warnings {
		logger.Warn(warning, zap.String("descriptor", descriptorPath))
	}
	if err != nil {
		return err
	}

	sniff(logger, d)

	b, functions, err := d.Build(logger)
	if err != nil {
		return err
	}

	var image bytes.Buffer
	if _, err = b.WriteTo(&image); err != nil {
		return err
	}
	if err = os.WriteFile(outputPath, image.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "failed to write output")
	}
	logger.Info("image written", zap.String("path", outputPath), zap.Int("size", image.Len()))

	for _, fn := range functions {
		fmt.Fprintf(w, "%s\t\t\tequ\t0x%x\n", fn.Name, fn.Address)
	}

	if opts.summary || opts.json {
		s, err := summarize(b, image.Bytes(), d.Libraries())
		if err != nil {
			return err
		}
		if opts.json {
			return s.writeJSON(w)
		}
		s.writeTable(w)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
