package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ReportField is one label/value line of an exported report.
type ReportField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Label is the user-facing name of the data source.
func (p Provenance) Label() string {
	switch p {
	case ProvenanceLive:
		return "MOENV 直連"
	case ProvenancePartial:
		return "部分即時 (備援補值)"
	default:
		return "備援系統"
	}
}

// ReportKeyReason is the key shared by the reason lines of a report.
const ReportKeyReason = "reason"

// ReportFields flattens an observation and its assessment into display-ready
// strings, followed by one ReportKeyReason line per assessment reason in order.
// Unknown readings render as "N/A".
func ReportFields(obs Observation, a Assessment) []ReportField {
	condLabels := make([]string, 0, len(a.Conditions))
	for _, c := range a.Conditions {
		condLabels = append(condLabels, c.Label())
	}
	conds := "無"
	if len(condLabels) > 0 {
		conds = strings.Join(condLabels, ", ")
	}

	fields := []ReportField{
		{Key: "county", Label: "縣市", Value: obs.County},
		{Key: "site", Label: "測站", Value: obs.SiteName},
		{Key: "provenance", Label: "數據源", Value: obs.Provenance.Label()},
		{Key: "aqi", Label: "AQI 指數", Value: strconv.Itoa(obs.AQI)},
		{Key: "pm2.5", Label: "PM₂.₅ (μg/m³)", Value: obs.PM25.String()},
		{Key: "pm10", Label: "PM₁₀ (μg/m³)", Value: obs.PM10.String()},
		{Key: "o3", Label: "O₃ 臭氧 (ppb)", Value: obs.O3.String()},
		{Key: "co", Label: "CO 一氧化碳 (ppm)", Value: obs.CO.String()},
		{Key: "no2", Label: "NO₂ 二氧化氮 (ppb)", Value: obs.NO2.String()},
		{Key: "so2", Label: "SO₂ 二氧化硫 (ppb)", Value: obs.SO2.String()},
		{Key: "tier", Label: "風險等級", Value: fmt.Sprintf("%s %s", a.Icon, a.Label)},
		{Key: "score", Label: "風險分數", Value: strconv.FormatFloat(a.Score, 'f', 1, 64)},
		{Key: "activity", Label: "活動強度", Value: a.Activity.Label()},
		{Key: "conditions", Label: "健康狀況", Value: conds},
		{Key: "recommendation", Label: "建議", Value: a.Recommendation},
	}
	for _, r := range a.Reasons {
		fields = append(fields, ReportField{Key: ReportKeyReason, Label: "風險評估依據", Value: r.Text})
	}
	return fields
}
