package risk

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/httpclient"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/model"
)

const (
	yrNoProviderName   = "yrno"
	forecastWindow     = 24 // hourly entries considered for the forecast score
	maxBodyPreviewSize = 200
	maxYrNoBody        = 4 << 20
)

// Pest pressure windows. Fall armyworm development is fastest between 22 and
// 30 °C and stops outside 12..38 °C; humid conditions favour larval survival.
const (
	tempOptLow   = 22.0
	tempOptHigh  = 30.0
	tempMin      = 12.0
	tempMax      = 38.0
	humidityLow  = 40.0
	humidityHigh = 90.0

	tempWeight     = 0.6
	humidityWeight = 0.4
)

// yrResponse is the subset of the locationforecast response used here.
type yrResponse struct {
	Properties struct {
		Timeseries []yrEntry `json:"timeseries"`
	} `json:"properties"`
}

type yrEntry struct {
	Time time.Time `json:"time"`
	Data struct {
		Instant struct {
			Details struct {
				AirTemperature float64 `json:"air_temperature"`
				RelHumidity    float64 `json:"relative_humidity"`
			} `json:"details"`
		} `json:"instant"`
		Next1Hours struct {
			Details struct {
				PrecipitationAmount float64 `json:"precipitation_amount"`
			} `json:"details"`
		} `json:"next_1_hours"`
	} `json:"data"`
}

// YrNo derives pest pressure from the met.no locationforecast API.
type YrNo struct {
	urlFormat string
	userAgent string
	http      *httpclient.Client
	log       logger.Logger
}

// NewYrNo creates a met.no backed provider. The base URL carries two %f
// verbs for latitude and longitude.
func NewYrNo(s conf.YrNoSettings, hc *httpclient.Client, log logger.Logger) *YrNo {
	if hc == nil {
		hc = httpclient.New(nil)
	}
	if s.BaseURL == "" {
		s.BaseURL = conf.DefaultYrNoBaseURL
	}
	if s.UserAgent == "" {
		s.UserAgent = conf.DefaultUserAgent
	}
	return &YrNo{
		urlFormat: s.BaseURL,
		userAgent: s.UserAgent,
		http:      hc,
		log:       logger.OrDiscard(log).Module("risk").With(logger.String("provider", yrNoProviderName)),
	}
}

// Name returns "yrno".
func (y *YrNo) Name() string { return yrNoProviderName }

// GetRisk fetches the forecast and scores it.
func (y *YrNo) GetRisk(ctx context.Context, lat, lon float64) (model.EnvironmentalRisk, error) {
	apiURL := fmt.Sprintf(y.urlFormat, lat, lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return model.EnvironmentalRisk{}, newRiskError(err, yrNoProviderName, "create_http_request")
	}
	// met.no rejects requests without an identifying User-Agent
	req.Header.Set("User-Agent", y.userAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := y.http.Do(ctx, req)
	if err != nil {
		return model.EnvironmentalRisk{}, newRiskError(err, yrNoProviderName, "forecast_request")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			y.log.Debug("failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyPreviewSize))
		y.log.Warn("received non-OK status code",
			logger.Int("status_code", resp.StatusCode),
			logger.String("response_body", string(preview)))
		return model.EnvironmentalRisk{}, newRiskError(
			fmt.Errorf("forecast request returned status %d", resp.StatusCode),
			yrNoProviderName, "forecast_response")
	}

	body, err := readBody(resp)
	if err != nil {
		return model.EnvironmentalRisk{}, newRiskError(err, yrNoProviderName, "read_response_body")
	}

	var forecast yrResponse
	if err := json.Unmarshal(body, &forecast); err != nil {
		return model.EnvironmentalRisk{}, newRiskError(err, yrNoProviderName, "unmarshal_forecast")
	}
	if len(forecast.Properties.Timeseries) == 0 {
		return model.EnvironmentalRisk{}, newRiskError(
			fmt.Errorf("no forecast data available in timeseries"),
			yrNoProviderName, "validate_forecast")
	}

	r := assess(forecast.Properties.Timeseries)
	y.log.Debug("risk assessed",
		logger.Float64("current_risk", r.CurrentRisk),
		logger.Float64("forecast_risk", r.ForecastRisk),
		logger.String("alert_level", string(r.AlertLevel)))
	return r, nil
}

// readBody reads and, when needed, decompresses the response body.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(io.LimitReader(reader, maxYrNoBody))
}

// assess scores the first entry as current risk and the worst of the next
// forecastWindow entries as forecast risk.
func assess(series []yrEntry) model.EnvironmentalRisk {
	current := pressure(series[0])
	forecast := current
	for _, e := range series[:min(len(series), forecastWindow)] {
		forecast = math.Max(forecast, pressure(e))
	}

	now := series[0].Data.Instant.Details
	recs := slices.Clone(baseRecommendations)
	if now.RelHumidity >= 80 {
		recs = append(recs, "Humidité élevée: inspecter le cornet des plants")
	}
	if now.AirTemperature >= tempOptLow && now.AirTemperature <= tempOptHigh {
		recs = append(recs, "Températures favorables aux chenilles: renforcer la surveillance")
	}

	return model.EnvironmentalRisk{
		CurrentRisk:     current,
		ForecastRisk:    forecast,
		AlertLevel:      model.AlertLevelFor(current),
		Source:          yrNoProviderName,
		Recommendations: recs,
	}
}

// pressure combines temperature and humidity suitability into [0,1].
func pressure(e yrEntry) float64 {
	d := e.Data.Instant.Details
	score := tempWeight*temperatureFactor(d.AirTemperature) + humidityWeight*humidityFactor(d.RelHumidity)
	return math.Round(score*1000) / 1000
}

func temperatureFactor(t float64) float64 {
	switch {
	case t <= tempMin || t >= tempMax:
		return 0
	case t < tempOptLow:
		return (t - tempMin) / (tempOptLow - tempMin)
	case t > tempOptHigh:
		return (tempMax - t) / (tempMax - tempOptHigh)
	default:
		return 1
	}
}

func humidityFactor(rh float64) float64 {
	return math.Max(0, math.Min(1, (rh-humidityLow)/(humidityHigh-humidityLow)))
}
