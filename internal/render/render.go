// Package render turns a snapshot into a self-contained HTML document. The
// template and all its styling are embedded and inlined, so the resulting
// document loads with zero external subresources and the capture browser
// needs no relaxed security settings.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"tinker/internal/model"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

// Renderer renders snapshots into HTML documents.
type Renderer struct {
	tpl *template.Template
}

// New parses and validates the embedded dashboard template. A broken or
// incomplete template is a startup-time configuration error; nothing here
// fails per request.
func New() (*Renderer, error) {
	tpl, err := template.ParseFS(templateFS, "templates/dashboard.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse template: %w", err)
	}

	r := &Renderer{tpl: tpl}

	// Execute once against a populated snapshot so missing slots surface at
	// startup instead of on the first device poll.
	if _, err := r.Render(probeSnapshot()); err != nil {
		return nil, fmt.Errorf("render: template validation: %w", err)
	}
	return r, nil
}

// Render executes the template against the snapshot. Pure substitution: all
// data transformation has already happened upstream.
func (r *Renderer) Render(snap *model.Snapshot) (string, error) {
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, snap); err != nil {
		return "", fmt.Errorf("render: execute template: %w", err)
	}
	return buf.String(), nil
}

func probeSnapshot() *model.Snapshot {
	return &model.Snapshot{
		Date: model.DateInfo{
			Year: 2024, Month: "January", Day: 1, Weekday: "Monday",
			FirstWeekday: 1, DaysInMonth: 31,
		},
		Weather: &model.WeatherSummary{
			CurrentIcon: "wi wi-na", CurrentTemp: 0, CurrentSummary: "n/a",
			Location: "probe",
			Days: []model.DayForecast{
				{Day: "Mon", Icon: "wi wi-na"},
				{Day: "Tue", Icon: "wi wi-na"},
				{Day: "Wed", Icon: "wi wi-na"},
			},
		},
		Events: []model.EventView{{Summary: "probe", Time: "Jan 01"}},
		Tasks:  []model.TaskView{{Title: "probe", DueDate: "Jan 01"}},
	}
}
