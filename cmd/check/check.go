package check

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pestalert/pestalert-go/internal/analysis"
	"github.com/pestalert/pestalert-go/internal/app"
	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/logger"
)

// ErrUnhealthy is returned when the classification service is unreachable.
var ErrUnhealthy = errors.NewStd("service unhealthy")

// Command creates the check command which reports service readiness.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check classifier reachability and voice notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(settings, logger.Global().Module("pestalert"), app.WithoutSinks())
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.Orchestrator.Status(cmd.Context())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(st); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), FormatStatus(st))
			}

			if st.Status == analysis.StatusError {
				return ErrUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

// FormatStatus renders a status report for terminals.
func FormatStatus(st analysis.ServiceStatus) string {
	var b strings.Builder

	icon := "✅"
	switch st.Status {
	case analysis.StatusWarning:
		icon = "⚠️"
	case analysis.StatusError:
		icon = "❌"
	}
	fmt.Fprintf(&b, "%s %s\n", icon, st.Status)
	if st.Error != "" {
		fmt.Fprintf(&b, "   %s\n", st.Error)
	}
	fmt.Fprintf(&b, "   classifier reachable: %v\n", st.Classifier)
	fmt.Fprintf(&b, "   voice notes complete: %v\n", st.AudioComplete)
	fmt.Fprintf(&b, "   risk provider:        %s\n", st.RiskProvider)
	return b.String()
}
