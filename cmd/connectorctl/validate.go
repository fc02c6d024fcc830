package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/drblury/connector"
)

func newValidateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load a configuration and list its participants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configPath(v)
			if err != nil {
				return err
			}
			doc, err := connector.LoadConfig(path)
			if err != nil {
				return err
			}

			var names []string
			for lib, participants := range doc.ParticipantLibraries {
				for name := range participants {
					names = append(names, lib+"::"+name)
				}
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok (%d types)\n", path, len(doc.Types))
			for _, name := range names {
				p, err := doc.ResolveParticipant(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %s domain=%d transport=%s\n", name, p.DomainID, p.Transport.GetPubSubSystem())
				for _, w := range p.Writers {
					fmt.Fprintf(out, "    writer %s topic=%s type=%s\n", w.Name, w.Topic, w.TypeName)
				}
				for _, r := range p.Readers {
					fmt.Fprintf(out, "    reader %s topic=%s type=%s\n", r.Name, r.Topic, r.TypeName)
				}
			}
			return nil
		},
	}
}
