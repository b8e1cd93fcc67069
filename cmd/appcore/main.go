// Command appcore runs and inspects an appcore application from its root
// directory.
//
//	appcore serve            # start the HTTP server
//	appcore routes           # list mounted routes and the middleware chain
//	appcore config           # print the merged configuration as YAML
//	appcore build            # compile every asset under the source root
//	appcore ping /healthz    # probe the running server
//
// Every command accepts --root (default $APPCORE_ROOT, then the working
// directory) and --env.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/appcore/config"
)

type globalFlags struct {
	root string
	env  string
}

func (g *globalFlags) configOptions() config.Options {
	return config.Options{Root: g.root, Env: g.env}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "appcore",
		Short:         "appcore application runner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.root, "root", "", "application root directory")
	root.PersistentFlags().StringVar(&g.env, "env", "", "environment name (overrides env.env)")

	root.AddCommand(newServeCmd(g))
	root.AddCommand(newRoutesCmd(g))
	root.AddCommand(newConfigCmd(g))
	root.AddCommand(newBuildCmd(g))
	root.AddCommand(newPingCmd(g))
	return root
}
