package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/drblury/connector"
	"github.com/drblury/connector/internal/runtime/jsoncodec"
)

type publishOptions struct {
	writer   string
	sets     []string
	json     string
	count    int
	interval time.Duration
}

func newPublishCommand(v *viper.Viper) *cobra.Command {
	var opts publishOptions
	cmd := &cobra.Command{
		Use:   "publish <Library::Participant>",
		Short: "Write samples through one output",
		Example: `  connectorctl publish MyParticipantLibrary::ShapePublisher \
    --config shapes.yaml --writer MyPublisher::MySquareWriter \
    --set color=BLUE --set x=3 --count 10 --interval 500ms`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, v, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.writer, "writer", "w", "", "Output name (Publisher::Writer)")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "Field assignment field=value, repeatable")
	cmd.Flags().StringVar(&opts.json, "json", "", "JSON object merged into the instance before --set")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "Number of samples to write")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "Delay between samples")
	_ = cmd.MarkFlagRequired("writer")
	return cmd
}

type assignment struct {
	field string
	value string
}

func parseAssignments(raw []string) ([]assignment, error) {
	out := make([]assignment, 0, len(raw))
	for _, r := range raw {
		field, value, ok := strings.Cut(r, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: assignment %q is not field=value", connector.ErrInvalidArgument, r)
		}
		out = append(out, assignment{field: field, value: value})
	}
	return out, nil
}

func runPublish(cmd *cobra.Command, v *viper.Viper, participant string, opts publishOptions) error {
	assignments, err := parseAssignments(opts.sets)
	if err != nil {
		return err
	}
	if opts.count < 1 {
		return fmt.Errorf("%w: --count must be positive", connector.ErrInvalidArgument)
	}

	c, closeConnector, err := openConnector(cmd, v, participant)
	if err != nil {
		return err
	}
	defer closeConnector()

	out, err := c.GetOutput(opts.writer)
	if err != nil {
		return err
	}
	defer out.Dispose()

	inst := out.Instance()
	if opts.json != "" {
		var obj map[string]any
		if err := jsoncodec.Unmarshal([]byte(opts.json), &obj); err != nil {
			return fmt.Errorf("%w: --json: %w", connector.ErrInvalidArgument, err)
		}
		if err := inst.SetValuesFrom(obj); err != nil {
			return err
		}
	}
	for _, a := range assignments {
		if err := inst.SetString(a.field, a.value); err != nil {
			return err
		}
	}

	ctx := commandContext(cmd)
	for i := range opts.count {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.interval):
			}
		}
		if err := out.Write(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote sample %d/%d\n", i+1, opts.count)
	}
	return nil
}
