package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Condition is a health-condition tag from the fixed vocabulary.
type Condition string

const (
	ConditionRespiratory    Condition = "respiratory"
	ConditionCardiovascular Condition = "cardiovascular"
	ConditionElderly        Condition = "elderly"
	ConditionInfant         Condition = "infant"
	ConditionOutdoorWorker  Condition = "outdoor_worker"
	ConditionPregnant       Condition = "pregnant"
)

type conditionInfo struct {
	label  string
	weight float64
}

// conditionOrder is the canonical order used for reasons and recommendations.
var conditionOrder = []Condition{
	ConditionRespiratory, ConditionCardiovascular, ConditionElderly,
	ConditionInfant, ConditionOutdoorWorker, ConditionPregnant,
}

var conditions = map[Condition]conditionInfo{
	ConditionRespiratory:    {label: "氣喘/呼吸道疾病", weight: 30},
	ConditionCardiovascular: {label: "心血管疾病", weight: 30},
	ConditionElderly:        {label: "65歲以上長者", weight: 20},
	ConditionInfant:         {label: "嬰幼兒", weight: 20},
	ConditionOutdoorWorker:  {label: "戶外工作者", weight: 15},
	ConditionPregnant:       {label: "孕婦", weight: 15},
}

// Conditions returns the vocabulary in canonical order.
func Conditions() []Condition { return slices.Clone(conditionOrder) }

// Label is the user-facing name of the condition.
func (c Condition) Label() string { return conditions[c].label }

// Weight is the score the condition adds before the activity multiplier.
func (c Condition) Weight() float64 { return conditions[c].weight }

// ParseCondition accepts a condition code or its label.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if _, ok := conditions[Condition(s)]; ok {
		return Condition(s), nil
	}
	for _, c := range conditionOrder {
		if conditions[c].label == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCondition, s)
}

// Activity is the current activity intensity.
type Activity string

const (
	ActivityResting Activity = "resting"
	ActivityLight   Activity = "light"
	ActivityIntense Activity = "intense"
)

type activityInfo struct {
	label      string
	short      string
	multiplier float64
}

var activities = map[Activity]activityInfo{
	ActivityResting: {label: "休息/辦公", short: "休息", multiplier: 1.0},
	ActivityLight:   {label: "輕度活動 (散步)", short: "輕度活動", multiplier: 1.2},
	ActivityIntense: {label: "高強度運動 (跑步/球類)", short: "高強度運動", multiplier: 1.5},
}

// Activities returns the levels from least to most strenuous.
func Activities() []Activity {
	return []Activity{ActivityResting, ActivityLight, ActivityIntense}
}

// Label is the user-facing name of the activity.
func (a Activity) Label() string { return activities[a.orDefault()].label }

// Multiplier scales the accumulated risk score.
func (a Activity) Multiplier() float64 { return activities[a.orDefault()].multiplier }

func (a Activity) orDefault() Activity {
	if a == "" {
		return ActivityResting
	}
	return a
}

// ParseActivity accepts a code, the full label or the short label. An empty
// string means resting.
func ParseActivity(s string) (Activity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ActivityResting, nil
	}
	if _, ok := activities[Activity(s)]; ok {
		return Activity(s), nil
	}
	for _, a := range Activities() {
		if info := activities[a]; info.label == s || info.short == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownActivity, s)
}

// Tier is the overall personal risk level.
type Tier string

const (
	TierSafe    Tier = "safe"
	TierCaution Tier = "caution"
	TierWarning Tier = "warning"
	TierDanger  Tier = "danger"
)

type tierInfo struct {
	label string
	color string
	icon  string
}

var tiers = map[Tier]tierInfo{
	TierSafe:    {label: "安全", color: "green", icon: "✅"},
	TierCaution: {label: "注意", color: "yellow", icon: "⚠️"},
	TierWarning: {label: "警告", color: "orange", icon: "⛔"},
	TierDanger:  {label: "危險", color: "red", icon: "☠️"},
}

// Label is the user-facing tier name.
func (t Tier) Label() string { return tiers[t].label }

// Color is the severity colour token.
func (t Tier) Color() string { return tiers[t].color }

// Icon is the severity icon token.
func (t Tier) Icon() string { return tiers[t].icon }

// Rank orders tiers from Safe (0) to Danger (3).
func (t Tier) Rank() int {
	return slices.Index([]Tier{TierSafe, TierCaution, TierWarning, TierDanger}, t)
}

// TierForScore maps a final score onto a tier.
func TierForScore(score float64) Tier {
	switch {
	case score < 40:
		return TierSafe
	case score < 80:
		return TierCaution
	case score < 120:
		return TierWarning
	default:
		return TierDanger
	}
}

// Reason factors.
const (
	FactorAQI          = "aqi"
	FactorConditions   = "conditions"
	FactorNoConditions = "no_conditions"
	FactorActivity     = "activity"
)

// Reason is one contributing factor of an assessment.
type Reason struct {
	Factor string  `json:"factor"`
	Points float64 `json:"points"`
	Text   string  `json:"text"`
}

// Assessment is the risk engine output.
type Assessment struct {
	Tier           Tier        `json:"tier"`
	Label          string      `json:"label"`
	Color          string      `json:"color"`
	Icon           string      `json:"icon"`
	Score          float64     `json:"score"`
	BaseScore      float64     `json:"base_score"`
	ConditionScore float64     `json:"condition_score"`
	Multiplier     float64     `json:"multiplier"`
	Conditions     []Condition `json:"conditions"`
	Activity       Activity    `json:"activity"`
	Reasons        []Reason    `json:"reasons"`
	Recommendation string      `json:"recommendation"`
}

// BaseScoreForAQI returns the AQI breakpoint contribution and its reason text.
func BaseScoreForAQI(aqi int) (float64, string) {
	switch {
	case aqi <= 50:
		return 0, fmt.Sprintf("AQI %d 屬良好等級 (0-50)，基礎風險 0 分", aqi)
	case aqi <= 100:
		return 20, fmt.Sprintf("AQI %d 屬普通等級 (51-100)，基礎風險 20 分", aqi)
	case aqi <= 150:
		return 50, fmt.Sprintf("AQI %d 對敏感族群不健康 (101-150)，基礎風險 50 分", aqi)
	default:
		return 80, fmt.Sprintf("AQI %d 對所有族群不健康 (>150)，基礎風險 80 分", aqi)
	}
}

// Assess scores a reading against a health profile. aqi must be non-negative.
// The result does not depend on the order or duplication of conditions.
func Assess(aqi int, conds []Condition, activity Activity) (Assessment, error) {
	if aqi < 0 {
		return Assessment{}, fmt.Errorf("%w: %d", ErrNegativeAQI, aqi)
	}
	activity = activity.orDefault()
	if _, ok := activities[activity]; !ok {
		return Assessment{}, fmt.Errorf("%w: %q", ErrUnknownActivity, activity)
	}
	set, err := canonicalConditions(conds)
	if err != nil {
		return Assessment{}, err
	}

	base, baseText := BaseScoreForAQI(aqi)
	reasons := []Reason{{Factor: FactorAQI, Points: base, Text: baseText}}

	var condScore float64
	labels := make([]string, 0, len(set))
	for _, c := range set {
		condScore += c.Weight()
		labels = append(labels, c.Label())
	}
	if len(set) == 0 {
		reasons = append(reasons, Reason{Factor: FactorNoConditions, Text: "未選擇健康風險因子，不額外加權"})
	} else {
		reasons = append(reasons, Reason{
			Factor: FactorConditions,
			Points: condScore,
			Text:   fmt.Sprintf("健康狀況 (%s) 加權 +%g 分", strings.Join(labels, "、"), condScore),
		})
	}

	mult := activity.Multiplier()
	if mult != 1 {
		reasons = append(reasons, Reason{
			Factor: FactorActivity,
			Points: (base + condScore) * (mult - 1),
			Text:   fmt.Sprintf("%s 增加呼吸量，風險分數 ×%g", activity.Label(), mult),
		})
	}

	score := (base + condScore) * mult
	tier := TierForScore(score)
	return Assessment{
		Tier:           tier,
		Label:          tier.Label(),
		Color:          tier.Color(),
		Icon:           tier.Icon(),
		Score:          score,
		BaseScore:      base,
		ConditionScore: condScore,
		Multiplier:     mult,
		Conditions:     set,
		Activity:       activity,
		Reasons:        reasons,
		Recommendation: recommend(tier, activity, labels),
	}, nil
}

// AssessLabels parses user-supplied tags and activity, then assesses.
func AssessLabels(aqi int, condLabels []string, activity string) (Assessment, error) {
	conds := make([]Condition, 0, len(condLabels))
	for _, l := range condLabels {
		c, err := ParseCondition(l)
		if err != nil {
			return Assessment{}, err
		}
		conds = append(conds, c)
	}
	act, err := ParseActivity(activity)
	if err != nil {
		return Assessment{}, err
	}
	return Assess(aqi, conds, act)
}

// canonicalConditions validates, deduplicates and sorts conditions into canonical order.
func canonicalConditions(conds []Condition) ([]Condition, error) {
	seen := make(map[Condition]bool, len(conds))
	for _, c := range conds {
		if _, ok := conditions[c]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, c)
		}
		seen[c] = true
	}
	out := make([]Condition, 0, len(seen))
	for _, c := range conditionOrder {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out, nil
}

func recommend(t Tier, activity Activity, labels []string) string {
	var forYou string
	if len(labels) > 0 {
		forYou = fmt.Sprintf("針對您的狀況 (%s)，", strings.Join(labels, ", "))
	}
	act := activity.Label()
	switch t {
	case TierDanger:
		return fmt.Sprintf("極高風險！ %s今日絕對不宜進行%s。", forYou, act)
	case TierWarning:
		return fmt.Sprintf("風險偏高。 %s建議取消%s，或改為室內進行。", forYou, act)
	case TierCaution:
		return fmt.Sprintf("環境普通。 若要進行%s，建議配戴口罩。", act)
	default:
		return fmt.Sprintf("環境優良。 空氣品質安全，請盡情享受%s。", act)
	}
}
