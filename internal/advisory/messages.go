package advisory

import (
	"fmt"
	"strings"

	"github.com/pestalert/pestalert-go/internal/model"
)

// Farmer-facing texts are French; the service runs in West Africa and the
// messages are relayed verbatim over WhatsApp.
const (
	degradedMessage = "🌾 *Analyse temporairement limitée*\n\n" +
		"Nous n'avons pas pu analyser complètement votre photo.\n" +
		"Veuillez réessayer dans quelques minutes.\n\n" +
		"📞 Contactez un expert si les symptômes persistent."

	serviceDegradedMessage = "Service temporairement dégradé. " +
		"Votre photo a bien été reçue mais l'analyse n'est pas disponible pour le moment. " +
		"Veuillez réessayer plus tard."

	// ValidationMessage is sent when the photo cannot be analysed at all.
	ValidationMessage = "📷 Image non valide. Veuillez envoyer une nouvelle photo nette de la plante (format JPEG ou PNG)."

	// RetryMessage is sent when the service failed entirely.
	RetryMessage = "❌ Analyse temporairement indisponible, veuillez réessayer."

	// RoutineMonitoring is the first bullet of the low-risk block.
	RoutineMonitoring = "✅ Continuer la surveillance régulière"
)

// Recommendation bullets by risk tier.
var (
	urgentRecommendations = []string{
		"🚨 Traitement immédiat recommandé",
		"🔬 Consulter un expert agricole",
		"🚫 Isoler les plants affectés",
	}
	watchRecommendations = []string{
		"👀 Surveillance accrue recommandée",
		"🛡️ Traitement préventif possible",
		"📊 Surveiller l'évolution",
	}
	routineRecommendations = []string{
		RoutineMonitoring,
		"🌱 Maintenir les bonnes pratiques",
		"💧 Optimiser l'arrosage et la ventilation",
	}
)

// diseaseAddendum adds label-specific advice. The first matching rule wins.
type diseaseAddendum struct {
	markers []string
	advice  []string
}

var diseaseAddenda = []diseaseAddendum{
	{markers: []string{"faw", "armyworm"}, advice: []string{
		"🦗 Vérifier la présence de chenilles",
		"🌙 Traiter de préférence le soir",
	}},
	{markers: []string{"rust", "rouille"}, advice: []string{
		"💨 Améliorer la ventilation",
		"💧 Réduire l'humidité",
	}},
	{markers: []string{"blight", "mildiou"}, advice: []string{
		"🌡️ Contrôler la température",
		"🍃 Éliminer les feuilles affectées",
	}},
}

// Recommendations returns the advice bullets for a top prediction.
func Recommendations(top model.DiseasePrediction) []string {
	var out []string
	switch top.Tier {
	case model.RiskCritical, model.RiskHigh:
		out = append(out, urgentRecommendations...)
	case model.RiskMedium:
		out = append(out, watchRecommendations...)
	default:
		out = append(out, routineRecommendations...)
	}

	label := fold(top.Label)
	for _, add := range diseaseAddenda {
		if containsAny(label, add.markers) {
			out = append(out, add.advice...)
			break
		}
	}
	return out
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func criticalMessage(top model.DiseasePrediction) string {
	var b strings.Builder
	b.WriteString("🚨 *CHENILLES LÉGIONNAIRES DÉTECTÉES !*\n\n")
	fmt.Fprintf(&b, "📊 Niveau de confiance: %s\n", percent(top.Confidence))
	b.WriteString("🌤️ Conditions météo: FAVORABLES À LA PROPAGATION\n\n")
	b.WriteString("⚡ *Actions recommandées:*\n")
	b.WriteString("[1] 🆘 Intervention urgente\n")
	b.WriteString("[2] 📞 Parler à expert\n")
	b.WriteString("[3] 🛒 Commander traitement")
	return b.String()
}

func preventiveMessage() string {
	return "⚠️ *RISQUE ÉLEVÉ DE RAVAGEURS*\n\n" +
		"🌤️ Conditions favorables détectées\n" +
		"🦠 Maladie possible sur vos cultures\n\n" +
		"💡 *Actions recommandées:*\n" +
		"[1] 🔍 Surveiller quotidiennement\n" +
		"[2] 📱 Signaler autres symptômes\n" +
		"[3] 🛡️ Traitement préventif"
}

func normalMessage(binary model.BinaryHealthResult, top model.DiseasePrediction) string {
	status := "⚠️ ATTENTION REQUISE"
	if binary.Prediction == model.Healthy {
		status = "✅ SAINE"
	}

	var b strings.Builder
	b.WriteString("🌾 *Résultats d'analyse PestAlert*\n\n")
	fmt.Fprintf(&b, "📊 *État général:* %s\n", status)
	fmt.Fprintf(&b, "🔍 *Confiance:* %s\n\n", percent(binary.Confidence))
	b.WriteString("🦠 *Analyse détaillée:*\n")
	fmt.Fprintf(&b, "• Problème principal détecté: %s\n", top.Label)
	fmt.Fprintf(&b, "• Niveau de confiance: %s\n", percent(top.Confidence))
	fmt.Fprintf(&b, "• Niveau de risque: %s\n\n", top.Tier)
	b.WriteString("💡 *Recommandations:*\n")
	for _, r := range Recommendations(top) {
		fmt.Fprintf(&b, "• %s\n", r)
	}
	b.WriteString("\n📞 Contactez un expert si les symptômes persistent.")
	return b.String()
}
