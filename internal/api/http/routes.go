package httpapi

import (
	"context"
	"errors"
	"html/template"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/monthly-weather-stats/internal/observability"
	"github.com/i474232898/monthly-weather-stats/internal/stats"
	"github.com/i474232898/monthly-weather-stats/internal/summary"
)

const decodeErrorsHeader = "X-Decode-Errors"

var validate = validator.New()

// SummaryService is the part of *summary.Service used by the handlers.
type SummaryService interface {
	GetMonthlySummaries(ctx context.Context) (summary.Summary, error)
}

var viewTemplate = template.Must(template.New("view").Parse(`<!doctype html>
<html>
<head>
    <meta charset="utf-8">
    <title>Monthly Weather Data</title>
</head>
<body>
    <h1>Monthly Temperature and Precipitation Summary</h1>
    <table border="1" cellpadding="8" cellspacing="0">
        <thead>
            <tr>
                <th>Month</th>
                <th>Average Max Temperature (°C)</th>
                <th>Precipitation (mm)</th>
            </tr>
        </thead>
        <tbody>
            {{- range .}}
            <tr>
                <td>{{.Month}}</td>
                <td>{{printf "%.2f" .Temperature}}</td>
                <td>{{printf "%.1f" .Precipitation}}</td>
            </tr>
            {{- end}}
        </tbody>
    </table>
</body>
</html>
`))

// RegisterRoutes wires the HTTP handlers into the Fiber app. metrics may be nil.
func RegisterRoutes(app *fiber.App, service SummaryService, metrics *observability.Metrics) {
	app.Get("/api/weather", func(c *fiber.Ctx) error {
		var q rangeQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		s, err := service.GetMonthlySummaries(c.UserContext())
		if err != nil {
			if errors.Is(err, summary.ErrSourceUnavailable) {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "could not load weather data",
				})
			}
			return err
		}

		s = s.Filter(q.monthRange())
		observeServed(metrics, "json")
		c.Set(decodeErrorsHeader, strconv.FormatInt(s.DecodeErrors(), 10))
		return c.JSON(s.Records)
	})

	app.Get("/view/weather", func(c *fiber.Ctx) error {
		var q rangeQuery
		if err := q.bind(c); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}

		s, err := service.GetMonthlySummaries(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading weather data.")
		}

		s = s.Filter(q.monthRange())
		observeServed(metrics, "html")
		c.Set(decodeErrorsHeader, strconv.FormatInt(s.DecodeErrors(), 10))
		c.Type("html", "utf-8")
		return viewTemplate.Execute(c, s.Records)
	})
}

// rangeQuery holds the optional month bounds shared by both endpoints.
type rangeQuery struct {
	From string `validate:"omitempty,datetime=2006-01"`
	To   string `validate:"omitempty,datetime=2006-01"`
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	q.From = c.Query("from")
	q.To = c.Query("to")

	if err := validate.Struct(q); err != nil {
		return err
	}
	if q.From != "" && q.To != "" && q.To < q.From {
		return errors.New("to must not be before from")
	}
	return nil
}

func (q rangeQuery) monthRange() summary.MonthRange {
	return summary.MonthRange{From: stats.MonthKey(q.From), To: stats.MonthKey(q.To)}
}

func observeServed(m *observability.Metrics, format string) {
	if m != nil {
		m.SummariesServed.WithLabelValues(format).Inc()
	}
}
