package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shashiranjanraj/appcore/config"
	"github.com/shashiranjanraj/appcore/pkg/app"
	"github.com/shashiranjanraj/appcore/pkg/compiler"
)

// appcore build: compile every asset ahead of time.
func newBuildCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Compile every asset under middleware.static.srcRoot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newCompiler(g)
			if err != nil {
				return err
			}
			results, err := c.BuildAll(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rebuilt := 0
			for _, r := range results {
				state := "fresh"
				if r.Rebuilt {
					state = "built"
					rebuilt++
				}
				fmt.Fprintf(out, "%-6s %-5s %s\n", state, r.Kind, r.Name)
			}
			fmt.Fprintf(out, "%d assets, %d rebuilt\n", len(results), rebuilt)
			return nil
		},
	}
}

func newCompiler(g *globalFlags) (*compiler.Compiler, error) {
	cfg, err := config.Load(g.configOptions())
	if err != nil {
		return nil, err
	}
	opts, err := app.CompilerOptions(cfg)
	if err != nil {
		return nil, err
	}
	// build runs regardless of compiler.enabled, which only gates the
	// request-time middleware
	opts.Enabled = true
	return compiler.New(
		cfg.Resolve(cfg.GetString("middleware.static.srcRoot")),
		cfg.Resolve(cfg.GetString("middleware.static.rootPath")),
		opts, zap.NewNop(), nil,
	), nil
}
