package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/appcore/config"
	"github.com/shashiranjanraj/appcore/pkg/agent"
)

// appcore ping: probe a running server, for container health checks.
func newPingCmd(g *globalFlags) *cobra.Command {
	var (
		target   string
		attempts int
		wait     time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ping [path]",
		Short: "GET a path on the running server and fail unless it answers 2xx",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = "/" + strings.TrimPrefix(args[0], "/")
			}
			if target == "" {
				cfg, err := config.Load(g.configOptions())
				if err != nil {
					return err
				}
				host := cfg.Host()
				if host == "" || host == "0.0.0.0" || host == "::" {
					host = "127.0.0.1"
				}
				target = "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port()))
			}
			url := strings.TrimSuffix(target, "/") + path

			res, err := agent.Get(url).
				Header("Accept", "*/*").
				Timeout(timeout).
				Retry(attempts, wait).
				Send(cmd.Context())
			if err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("ping %s: status %d", url, res.StatusCode)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", url, res.StatusCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "url", "", "base URL (default http://host:port from the configuration)")
	cmd.Flags().IntVar(&attempts, "attempts", 3, "total attempts before giving up")
	cmd.Flags().DurationVar(&wait, "wait", 200*time.Millisecond, "backoff before the second attempt, doubled after each")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-attempt timeout")
	return cmd
}
