package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gomlx/piispans/config"
)

func newSchemaCmd(cfg *config.Config) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the label schema",
		Long: `Schema validates the configured label schema (--schema, or the default entity types) and prints
its tag ids, or with --yaml a schema file that reproduces the same tag ids.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cfg, asYAML, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the schema as YAML")
	return cmd
}

func runSchema(cfg *config.Config, asYAML bool, out io.Writer) error {
	s, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	if asYAML {
		content, err := s.Marshal()
		if err != nil {
			return err
		}
		_, err = out.Write(content)
		return err
	}
	for id, tag := range s.Tags() {
		fmt.Fprintf(out, "%3d  %s\n", id, tag)
	}
	return nil
}
