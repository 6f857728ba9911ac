package main

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

var errUnhealthy = errors.New("backend is not ready")

func newHealthCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := env.client.Health(cmd.Context())
			if err != nil {
				return err
			}
			status := "ok"
			if !h.OK {
				status = "degraded"
			}
			fmt.Fprintf(env.stdout, "%s (%s): %s\n", h.App, h.Env, status)
			for _, name := range slices.Sorted(maps.Keys(h.Deps)) {
				state := "up"
				if !h.Deps[name] {
					state = "down"
				}
				fmt.Fprintf(env.stdout, "  %-10s %s\n", name, state)
			}
			if !h.OK {
				return errUnhealthy
			}
			return nil
		},
	}
}
