// cmd/intellinspect/inspect.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/FairForge/intellinspect/internal/config"
	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/partition"
	"github.com/FairForge/intellinspect/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	trainingFlag   string
	testingFlag    string
	simulationFlag string
)

// profileCmd profiles a raw file without ingesting it
func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <uri>",
		Short: "Print the profile of a dataset file",
		Long: `Reads a local path, file:// or s3:// uri (optionally .gz, .zst or .sz compressed),
normalizes its timestamps and prints row count, pass rate and date range as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), profile)
		},
	}
}

// partitionCmd validates three windows against a file's bounds
func partitionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partition <uri>",
		Short: "Validate a training/testing/simulation split of a dataset file",
		Long: `Each window is given as start,end. Every violated rule is printed;
the command fails when the partition is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePartitionFlags()
			if err != nil {
				return err
			}

			profile, err := inspect(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			result := partition.Validate(partition.Bounds{
				Earliest: profile.Earliest,
				Latest:   profile.Latest,
				RowCount: profile.RowCount,
			}, p)
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("partition is invalid: %d problem(s)", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&trainingFlag, "training", "", "Training window as start,end")
	cmd.Flags().StringVar(&testingFlag, "testing", "", "Testing window as start,end")
	cmd.Flags().StringVar(&simulationFlag, "simulation", "", "Simulation window as start,end")
	_ = cmd.MarkFlagRequired("training")
	_ = cmd.MarkFlagRequired("testing")
	_ = cmd.MarkFlagRequired("simulation")

	return cmd
}

func inspect(ctx context.Context, uri string) (dataset.Profile, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return dataset.Profile{}, err
	}
	logger := zap.NewNop()

	// the operator running the CLI may read any file they can
	catalog, err := newCatalog(ctx, cfg, store.NewMemoryStore(), "", logger)
	if err != nil {
		return dataset.Profile{}, err
	}
	return catalog.Inspect(ctx, uri)
}

func parsePartitionFlags() (partition.Partition, error) {
	var p partition.Partition
	var errs []error
	for _, f := range []struct {
		name string
		raw  string
		dst  *partition.Window
	}{
		{partition.Training, trainingFlag, &p.Training},
		{partition.Testing, testingFlag, &p.Testing},
		{partition.Simulation, simulationFlag, &p.Simulation},
	} {
		w, err := parseWindowFlag(f.name, f.raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*f.dst = w
	}
	return p, errors.Join(errs...)
}

func parseWindowFlag(name, raw string) (partition.Window, error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return partition.Window{}, fmt.Errorf("--%s: expected start,end, got %q", name, raw)
	}
	start, ok := dataset.ParseTimestamp(parts[0])
	if !ok {
		return partition.Window{}, fmt.Errorf("--%s: unrecognized start %q", name, parts[0])
	}
	end, ok := dataset.ParseTimestamp(parts[1])
	if !ok {
		return partition.Window{}, fmt.Errorf("--%s: unrecognized end %q", name, parts[1])
	}
	return partition.Window{Start: start, End: end}, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
