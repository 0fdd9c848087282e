package httpadapter

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/couchcryptid/air-quality-dashboard/internal/dashboard"
	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string { return t.In(taipei).Format("2006-01-02 15:04") },
}).Parse(`空氣品質健康風險報告
產生時間: {{ stamp .GeneratedAt }}
報告編號: {{ .ID }}

{{ range .Report }}{{ if ne .Key "reason" }}{{ .Label }}: {{ .Value }}
{{ end }}{{ end }}
風險評估依據:
{{ range .Report }}{{ if eq .Key "reason" }}- {{ .Value }}
{{ end }}{{ end }}
未來趨勢 (每小時):
{{ range .Forecast.Forward }}{{ stamp .Time }}  AQI {{ .Value }}
{{ end }}`))

var taipei = time.FixedZone("Asia/Taipei", 8*60*60)

func writeReport(w io.Writer, snap dashboard.Snapshot) error {
	return reportTemplate.Execute(w, snap)
}

// reportFilename is ASCII-only so the Content-Disposition header stays portable.
func reportFilename(snap dashboard.Snapshot) string {
	return fmt.Sprintf("aqi-report-%s-%s.txt",
		snap.GeneratedAt.In(taipei).Format("20060102-1504"),
		provenanceSlug(snap.Observation.Provenance))
}

func provenanceSlug(p domain.Provenance) string {
	if p == "" {
		return "unknown"
	}
	return string(p)
}
