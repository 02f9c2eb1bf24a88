package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"
	"strconv"

	"powermeter-server/internal/modules/measurements/types"
)

const timestampLayout = "02/01/2006 15:04:05"

var dashboardTmpl *template.Template

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	dashboardTmpl = tmpl
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// StaticFS returns the embedded assets rooted so that "js/realtime_display.js"
// is served as /static/js/realtime_display.js.
func StaticFS() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// MeasurementRow is one table row of the realtime view.
type MeasurementRow struct {
	Timestamp string
	Power     string
	Voltage   string
	Current   string
	Energy    string
	Alert     bool
}

type DashboardData struct {
	Rows                []MeasurementRow
	PowerAlertThreshold float64
	// Alert is set when any row exceeds the threshold.
	Alert bool
}

// NewDashboardData builds the view model for measurements (newest first).
func NewDashboardData(measurements []types.Measurement, threshold float64) *DashboardData {
	data := &DashboardData{
		Rows:                make([]MeasurementRow, 0, len(measurements)),
		PowerAlertThreshold: threshold,
	}
	for _, m := range measurements {
		over := m.Power > threshold
		if over {
			data.Alert = true
		}
		data.Rows = append(data.Rows, MeasurementRow{
			Timestamp: m.Timestamp.UTC().Format(timestampLayout),
			Power:     formatFloat(m.Power),
			Voltage:   formatFloat(m.Voltage),
			Current:   formatFloat(m.Current),
			Energy:    formatFloat(m.Energy),
			Alert:     over,
		})
	}
	return data
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}
