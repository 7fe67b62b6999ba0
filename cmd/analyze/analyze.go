package analyze

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pestalert/pestalert-go/internal/advisory"
	"github.com/pestalert/pestalert-go/internal/app"
	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/model"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
)

type options struct {
	farmerID string
	lat, lon float64
	tier     string
	format   string
	publish  bool
}

// Command creates the analyze command which runs one photo through the pipeline.
func Command(settings *conf.Settings) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "analyze [photo.jpg]",
		Short: "Analyze a single crop photo",
		Long:  "Validate and classify one photo, assess local pest risk and print the advisory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.farmerID, "farmer", "cli", "Farmer identifier")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "Field latitude")
	cmd.Flags().Float64Var(&opts.lon, "lon", 0, "Field longitude")
	cmd.Flags().StringVar(&opts.tier, "tier", string(model.TierBasic), "Subscription tier (basic, premium)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", FormatText, "Output format: json, yaml or text")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Deliver the outcome to the configured MQTT and push sinks")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, path string, opts options) error {
	if !validFormat(opts.format) {
		return fmt.Errorf("unknown format %q, use json, yaml or text", opts.format)
	}

	image, err := os.ReadFile(path)
	if err != nil {
		return errors.New(err).
			Component("cli").
			Category(errors.CategoryFileIO).
			Context("operation", "read_photo").
			Build()
	}

	var appOpts []app.Option
	if !opts.publish {
		appOpts = append(appOpts, app.WithoutSinks())
	}
	a, err := app.New(settings, logger.Global().Module("pestalert"), appOpts...)
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.Orchestrator.Analyze(cmd.Context(), image, model.FarmerContext{
		ID:       opts.farmerID,
		Location: model.Location{Lat: opts.lat, Lon: opts.lon},
		Tier:     model.SubscriptionTier(opts.tier),
	})
	if err != nil {
		if errors.IsCategory(err, errors.CategoryValidation) {
			fmt.Fprintln(cmd.ErrOrStderr(), advisory.ValidationMessage)
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), advisory.RetryMessage)
		}
		return err
	}

	return Render(cmd.OutOrStdout(), outcome, opts.format)
}

func validFormat(f string) bool {
	switch f {
	case FormatJSON, FormatYAML, FormatText:
		return true
	}
	return false
}

// Render writes the outcome in the requested format.
func Render(w io.Writer, o *model.AnalysisOutcome, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(o); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderText(w, o)
	}
}

func renderText(w io.Writer, o *model.AnalysisOutcome) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Request:    %s\n", o.RequestID)
	fmt.Fprintf(&b, "Outcome:    %s\n", o.Kind)
	fmt.Fprintf(&b, "Health:     %s (%.0f%%)\n", o.Binary.Prediction, o.Binary.Confidence*100)
	fmt.Fprintf(&b, "Top class:  %s (%.0f%%, %s)\n", o.MultiClass.Top.Label, o.MultiClass.Top.Confidence*100, o.MultiClass.Top.Tier)
	fmt.Fprintf(&b, "Risk:       %s (now %.0f%%, forecast %.0f%%)\n", o.Risk.AlertLevel, o.Risk.CurrentRisk*100, o.Risk.ForecastRisk*100)

	actions := make([]string, len(o.Decision.Actions))
	for i, a := range o.Decision.Actions {
		actions[i] = string(a)
	}
	fmt.Fprintf(&b, "Actions:    %s\n", strings.Join(actions, ", "))

	if o.Audio != nil {
		fmt.Fprintf(&b, "Voice note: %s (%s)\n", o.Audio.Filename, o.Audio.Category)
	} else {
		b.WriteString("Voice note: none\n")
	}
	for _, d := range o.Degradations {
		fmt.Fprintf(&b, "Degraded:   %s -> %s (%s)\n", d.Step, d.Replaces, d.Reason)
	}

	b.WriteString("\n")
	b.WriteString(o.Decision.Message)
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
