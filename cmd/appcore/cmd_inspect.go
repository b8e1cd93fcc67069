package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/shashiranjanraj/appcore/config"
	"github.com/shashiranjanraj/appcore/pkg/app"
)

const masked = "********"

// appcore routes: assemble the app without listening and print what it
// would serve.
func newRoutesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "routes",
		Aliases: []string{"route:list"},
		Short:   "List mounted routes and the middleware chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app.New(nil, app.WithConfigOptions(g.configOptions()), app.WithLogger(zap.NewNop()))
			if err := a.Init(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "LAYER\tKIND")
			for _, l := range a.Router().LayerKinds() {
				fmt.Fprintf(w, "%s\t%s\n", l.Name, l.Kind)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(out)

			infos := a.Router().Routes()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No routes mounted.")
				return nil
			}
			w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "METHOD\tPATH\tNAME")
			for _, ri := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\n", ri.Method, ri.Pattern, ri.Name)
			}
			return w.Flush()
		},
	}
}

// appcore config: print the merged configuration.
func newConfigCmd(g *globalFlags) *cobra.Command {
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the merged configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(g.configOptions())
			if err != nil {
				return err
			}
			settings := cfg.AllSettings()
			if !showSecrets {
				maskSecrets(settings)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(settings); err != nil {
				return fmt.Errorf("config: encode: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print secrets and passwords in clear")
	return cmd
}

// maskSecrets replaces values whose key names a credential.
func maskSecrets(m map[string]any) {
	for k, v := range m {
		switch x := v.(type) {
		case map[string]any:
			maskSecrets(x)
		default:
			switch k {
			case "secret", "password":
				if fmt.Sprint(x) != "" {
					m[k] = masked
				}
			}
		}
	}
}
