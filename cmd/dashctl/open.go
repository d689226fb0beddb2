package main

import (
	"fmt"
	"time"

	"microsight/dashboard-service/internal/guard"
	"microsight/dashboard-service/internal/nav"

	"github.com/spf13/cobra"
)

type openOutput struct {
	Resolution guard.Resolution `json:"resolution" yaml:"resolution"`
	Navigated  string           `json:"navigated,omitempty" yaml:"navigated,omitempty"`
	Cancelled  bool             `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
}

func (a *app) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Check what opening a dashboard path would do",
		Long: `Resolve a path against the route table with the current session.

For a view the session may not see, dashctl waits for the grace period and
then reports the redirect to the role dashboard. Ctrl-C during the wait
cancels the redirect.

Examples:
  dashctl open /dashboard
  dashctl open /dashboard/admin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested := args[0]
			res := a.router.Resolve(requested, guard.StateOf(a.sessions))
			out := openOutput{Resolution: res}
			w := cmd.OutOrStdout()
			table := a.outputFormat != "json" && a.outputFormat != "yaml"

			if res.Action == guard.ActionDenied {
				if table {
					fmt.Fprintf(w, "Access denied. Redirecting to %s in %s\n", res.Location, time.Duration(res.GraceMillis)*time.Millisecond)
				}
				route, _ := a.router.Match(res.Route)
				g := guard.New(a.sessions, a.grace)
				defer g.Close()

				redirected := make(chan nav.Navigation, 1)
				g.Evaluate(requested, route.Allowed, func(n nav.Navigation) { redirected <- n })
				select {
				case n := <-redirected:
					out.Navigated = n.To
				case <-cmd.Context().Done():
					out.Cancelled = true
				}
			}

			if done, err := a.emit(w, out); done {
				return err
			}
			switch {
			case out.Cancelled:
				fmt.Fprintln(w, "Redirect cancelled.")
			case out.Navigated != "":
				fmt.Fprintf(w, "-> %s\n", out.Navigated)
			case res.Action == guard.ActionRedirect:
				location := res.Location
				if res.Decision.ReturnTo != "" {
					location += " (after sign-in: " + res.Decision.ReturnTo + ")"
				}
				if res.Permanent {
					location += " (moved)"
				}
				fmt.Fprintf(w, "-> %s\n", location)
			default:
				fmt.Fprintf(w, "%s %s\n", res.Action, requested)
			}
			return nil
		},
	}
}
