package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/i474232898/monthly-weather-stats/internal/resilience"
	"github.com/i474232898/monthly-weather-stats/internal/stats"
)

const openMeteoArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

var ErrSeriesMismatch = errors.New("open-meteo daily series have different lengths")

// OpenMeteoQuery selects a coordinate and an inclusive date range.
type OpenMeteoQuery struct {
	Latitude  float64
	Longitude float64
	Start     time.Time
	End       time.Time
	Timezone  string
}

func (q OpenMeteoQuery) validate() error {
	if q.Latitude < -90 || q.Latitude > 90 || q.Longitude < -180 || q.Longitude > 180 {
		return fmt.Errorf("coordinate out of range: %f,%f", q.Latitude, q.Longitude)
	}
	if q.Start.IsZero() || q.End.IsZero() || q.End.Before(q.Start) {
		return errors.New("open-meteo query needs start <= end")
	}
	return nil
}

// OpenMeteoSource fetches daily observations from the Open-Meteo archive API.
type OpenMeteoSource struct {
	baseURL string
	client  *http.Client
	policy  *resilience.Policy
	logger  log.FieldLogger
}

func NewOpenMeteoSource(client *http.Client, logger log.FieldLogger) *OpenMeteoSource {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &OpenMeteoSource{
		baseURL: openMeteoArchiveURL,
		client:  client,
		policy:  resilience.NewPolicy("openmeteo", resilience.DefaultBackoff),
		logger:  logger.WithField("source", "openmeteo"),
	}
}

// WithBaseURL points the source at another archive endpoint.
func (s *OpenMeteoSource) WithBaseURL(u string) *OpenMeteoSource {
	s.baseURL = u
	return s
}

type openMeteoDaily struct {
	Time          []string   `json:"time"`
	MaxTemp       []*float64 `json:"temperature_2m_max"`
	Precipitation []*float64 `json:"precipitation_sum"`
}

// observationLine mirrors the input record. Pointer fields keep gaps as null.
type observationLine struct {
	Date          string   `json:"date"`
	MaxTemp       *float64 `json:"temperature_2m_max"`
	Precipitation *float64 `json:"precipitation_sum"`
}

// Fetch returns one JSON observation line per day of the query range.
func (s *OpenMeteoSource) Fetch(ctx context.Context, q OpenMeteoQuery) ([]byte, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", q.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", q.Longitude))
		values.Set("start_date", q.Start.Format(time.DateOnly))
		values.Set("end_date", q.End.Format(time.DateOnly))
		values.Set("daily", stats.FieldMaxTemp+","+stats.FieldPrecipitation)
		tz := q.Timezone
		if tz == "" {
			tz = "UTC"
		}
		values.Set("timezone", tz)

		u := fmt.Sprintf("%s?%s", s.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := resilience.DoHTTP(ctx, s.policy, s.client, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("open-meteo archive: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Daily openMeteoDaily `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode open-meteo response: %w", err)
	}

	d := payload.Daily
	if len(d.MaxTemp) != len(d.Time) || len(d.Precipitation) != len(d.Time) {
		return nil, ErrSeriesMismatch
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, day := range d.Time {
		if err := enc.Encode(observationLine{Date: day, MaxTemp: d.MaxTemp[i], Precipitation: d.Precipitation[i]}); err != nil {
			return nil, err
		}
	}

	s.logger.WithFields(log.Fields{
		"lat":  q.Latitude,
		"lon":  q.Longitude,
		"days": len(d.Time),
	}).Info("fetched daily archive")
	return buf.Bytes(), nil
}
