// Copyright 2020 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carvel-forks/stackform/pkg/docmodel"
	"github.com/carvel-forks/stackform/pkg/location"
	"github.com/carvel-forks/stackform/pkg/transform"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stackform:", err)
		os.Exit(1)
	}
}

type options struct {
	file      string
	outFormat string
	awsRegion string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:   "stackform",
		Short: "Pre-process a declarative infrastructure document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}

	cmd.Flags().StringVarP(&o.file, "file", "f", "", "root document location (required)")
	cmd.Flags().StringVar(&o.outFormat, "output", "yaml", "output format: yaml|json")
	cmd.Flags().StringVar(&o.awsRegion, "aws-region", "", "AWS region for s3:/ssm: locations (defaults to the standard AWS credential chain)")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "enable structured diagnostic logging")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func run(ctx context.Context, o *options) error {
	logger := zerolog.Nop()
	if o.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	loader, err := buildLoader(ctx, o, logger)
	if err != nil {
		return err
	}

	out, err := transform.Transform(ctx, o.file, loader)
	if err != nil {
		return err
	}

	format := docmodel.FormatYAML
	if o.outFormat == "json" {
		format = docmodel.FormatJSON
	}
	b, err := docmodel.Dump(out, format)
	if err != nil {
		return fmt.Errorf("dumping output: %w", err)
	}
	_, err = os.Stdout.Write(b)
	return err
}

// buildLoader wires a location.DefaultLoader with AWS SDK clients built
// from the standard credential chain at startup. If the AWS configuration
// cannot be loaded, the failure is only logged and the clients are left
// nil, so documents with no s3:/ssm: imports still transform (SPEC_FULL.md
// §1 Configuration).
func buildLoader(ctx context.Context, o *options, logger zerolog.Logger) (location.Loader, error) {
	loader := location.NewDefaultLoader()
	loader.Logger = logger

	var opts []func(*awsconfig.LoadOptions) error
	if o.awsRegion != "" {
		opts = append(opts, awsconfig.WithRegion(o.awsRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Debug().Err(err).Msg("no AWS credentials configured; s3:/ssm: imports will fail if used")
	} else {
		loader.S3Client = s3.NewFromConfig(awsCfg)
		loader.SSMClient = ssm.NewFromConfig(awsCfg)
	}

	return loader.Load, nil
}
