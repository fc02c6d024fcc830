package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/drblury/connector"
	"github.com/drblury/connector/internal/runtime/jsoncodec"
)

type subscribeOptions struct {
	reader  string
	timeout time.Duration
	max     int
}

type printedSample struct {
	Info connector.SampleInfo `json:"info"`
	Data map[string]any       `json:"data,omitempty"`
}

func newSubscribeCommand(v *viper.Viper) *cobra.Command {
	var opts subscribeOptions
	cmd := &cobra.Command{
		Use:   "subscribe <Library::Participant>",
		Short: "Print samples received by one input as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, v, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.reader, "reader", "r", "", "Input name (Subscriber::Reader)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Stop after this long without data (0 waits forever)")
	cmd.Flags().IntVarP(&opts.max, "max", "n", 0, "Stop after this many samples (0 is unlimited)")
	_ = cmd.MarkFlagRequired("reader")
	return cmd
}

func runSubscribe(cmd *cobra.Command, v *viper.Viper, participant string, opts subscribeOptions) error {
	c, closeConnector, err := openConnector(cmd, v, participant)
	if err != nil {
		return err
	}
	defer closeConnector()

	in, err := c.GetInput(opts.reader)
	if err != nil {
		return err
	}
	defer in.Dispose()

	timeout := opts.timeout
	if timeout == 0 {
		timeout = connector.WaitInfinite
	}
	ctx := commandContext(cmd)
	printed := 0
	for opts.max == 0 || printed < opts.max {
		ok, err := in.WaitForSamples(ctx, timeout)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil
		}
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := in.Take(); err != nil {
			return err
		}
		for s, err := range in.Samples().All() {
			if err != nil {
				return err
			}
			if err := printSample(cmd, s); err != nil {
				return err
			}
			printed++
			if opts.max > 0 && printed >= opts.max {
				break
			}
		}
	}
	return nil
}

func printSample(cmd *cobra.Command, s *connector.Sample) error {
	info, err := s.Info()
	if err != nil {
		return err
	}
	p := printedSample{Info: info}
	if info.ValidData {
		if p.Data, err = s.GetAsObject(); err != nil {
			return err
		}
	}
	line, err := jsoncodec.Marshal(p)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(line))
	return nil
}
