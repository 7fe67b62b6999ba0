package notification

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pestalert/pestalert-go/internal/model"
	"github.com/pestalert/pestalert-go/internal/privacy"
)

// DefaultTemplate renders the operator message for a critical alert.
const DefaultTemplate = `🚨 Alerte critique {{.Instance}}
Détection: {{.Label}} ({{.ConfidencePercent}}%)
Pression ravageurs: {{.AlertLevel}} ({{.CurrentRiskPercent}}%)
Agriculteur: {{.FarmerID}}
Position: {{printf "%.3f" .Latitude}}, {{printf "%.3f" .Longitude}}
Heure: {{.Time}}
Requête: {{.RequestID}}`

// TemplateData is the view of an outcome exposed to message templates.
// The farmer identifier is masked.
type TemplateData struct {
	Instance           string
	RequestID          string
	FarmerID           string
	Label              string
	ConfidencePercent  string
	AlertLevel         string
	CurrentRiskPercent string
	Latitude           float64
	Longitude          float64
	Time               string
	Actions            []string
}

// NewTemplateData builds template data from an outcome.
func NewTemplateData(instance string, o *model.AnalysisOutcome) *TemplateData {
	actions := make([]string, len(o.Decision.Actions))
	for i, a := range o.Decision.Actions {
		actions[i] = string(a)
	}
	return &TemplateData{
		Instance:           instance,
		RequestID:          o.RequestID,
		FarmerID:           privacy.MaskFarmerID(o.Farmer.ID),
		Label:              o.MultiClass.Top.Label,
		ConfidencePercent:  fmt.Sprintf("%.0f", o.MultiClass.Top.Confidence*100),
		AlertLevel:         string(o.Risk.AlertLevel),
		CurrentRiskPercent: fmt.Sprintf("%.0f", o.Risk.CurrentRisk*100),
		Latitude:           o.Farmer.Location.Lat,
		Longitude:          o.Farmer.Location.Lon,
		Time:               o.GeneratedAt.Format(time.DateTime),
		Actions:            actions,
	}
}

func parseTemplate(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultTemplate
	}
	return template.New("alert").Option("missingkey=error").Parse(text)
}

func render(tmpl *template.Template, data *TemplateData) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
