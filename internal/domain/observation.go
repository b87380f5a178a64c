package domain

import (
	"fmt"
	"strconv"
)

// FeatureKey is the case-sensitive wire name of a clinical feature.
type FeatureKey string

const (
	FeatureAge         FeatureKey = "Age"
	FeatureSystolicBP  FeatureKey = "SystolicBP"
	FeatureDiastolicBP FeatureKey = "DiastolicBP"
	FeatureBloodSugar  FeatureKey = "BS"
	FeatureBodyTemp    FeatureKey = "BodyTemp"
	FeatureHeartRate   FeatureKey = "HeartRate"
)

// Feature describes one entry of the observation schema.
type Feature struct {
	Key     FeatureKey `json:"key"`
	Label   string     `json:"label"`
	Unit    string     `json:"unit,omitempty"`
	Min     float64    `json:"min"`
	Max     float64    `json:"max"`
	Default float64    `json:"default"`
}

// ObservationSchema lists the features in declared order. Every iteration over
// features (request encoding, contribution ordering, validation) follows it.
var ObservationSchema = []Feature{
	{Key: FeatureAge, Label: "Age", Unit: "years", Min: 15, Max: 60, Default: 28},
	{Key: FeatureSystolicBP, Label: "Systolic blood pressure", Unit: "mmHg", Min: 70, Max: 250, Default: 120},
	{Key: FeatureDiastolicBP, Label: "Diastolic blood pressure", Unit: "mmHg", Min: 40, Max: 150, Default: 80},
	{Key: FeatureBloodSugar, Label: "Blood sugar (BS)", Unit: "mmol/L", Min: 1.0, Max: 30.0, Default: 6.5},
	{Key: FeatureBodyTemp, Label: "Body temperature", Unit: "°F", Min: 90.0, Max: 104.0, Default: 98.6},
	{Key: FeatureHeartRate, Label: "Heart rate", Unit: "bpm", Min: 40, Max: 180, Default: 85},
}

// LookupFeature returns the schema entry for key.
func LookupFeature(key FeatureKey) (Feature, bool) {
	for _, f := range ObservationSchema {
		if f.Key == key {
			return f, true
		}
	}
	return Feature{}, false
}

// Label returns the human readable label for key, falling back to the key itself.
func (k FeatureKey) Label() string {
	if f, ok := LookupFeature(k); ok {
		return f.Label
	}
	return string(k)
}

// IsValid reports whether key belongs to the observation schema.
func (k FeatureKey) IsValid() bool {
	_, ok := LookupFeature(k)
	return ok
}

// Observation is a single visit's clinical record.
type Observation struct {
	Age         float64 `json:"Age" yaml:"Age"`
	SystolicBP  float64 `json:"SystolicBP" yaml:"SystolicBP"`
	DiastolicBP float64 `json:"DiastolicBP" yaml:"DiastolicBP"`
	BS          float64 `json:"BS" yaml:"BS"`
	BodyTemp    float64 `json:"BodyTemp" yaml:"BodyTemp"`
	HeartRate   float64 `json:"HeartRate" yaml:"HeartRate"`
}

// DefaultObservation returns a visit populated with the schema defaults.
func DefaultObservation() Observation {
	var o Observation
	for _, f := range ObservationSchema {
		_ = o.Set(f.Key, f.Default)
	}
	return o
}

// Value returns the observed value of key. Unknown keys report false.
func (o Observation) Value(key FeatureKey) (float64, bool) {
	switch key {
	case FeatureAge:
		return o.Age, true
	case FeatureSystolicBP:
		return o.SystolicBP, true
	case FeatureDiastolicBP:
		return o.DiastolicBP, true
	case FeatureBloodSugar:
		return o.BS, true
	case FeatureBodyTemp:
		return o.BodyTemp, true
	case FeatureHeartRate:
		return o.HeartRate, true
	default:
		return 0, false
	}
}

// Set assigns value to key.
func (o *Observation) Set(key FeatureKey, value float64) error {
	switch key {
	case FeatureAge:
		o.Age = value
	case FeatureSystolicBP:
		o.SystolicBP = value
	case FeatureDiastolicBP:
		o.DiastolicBP = value
	case FeatureBloodSugar:
		o.BS = value
	case FeatureBodyTemp:
		o.BodyTemp = value
	case FeatureHeartRate:
		o.HeartRate = value
	default:
		return fmt.Errorf("unknown feature %q", key)
	}
	return nil
}

// FeatureValue pairs a feature key with its observed value.
type FeatureValue struct {
	Key   FeatureKey
	Value float64
}

// Features returns the observation's values in schema order.
func (o Observation) Features() []FeatureValue {
	values := make([]FeatureValue, 0, len(ObservationSchema))
	for _, f := range ObservationSchema {
		v, _ := o.Value(f.Key)
		values = append(values, FeatureValue{Key: f.Key, Value: v})
	}
	return values
}

// FormatValue renders an observed value the way clinicians type it: no
// trailing zeros, no exponent for ordinary magnitudes.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ObservationSequence is one patient's visits in chronological order.
type ObservationSequence []Observation

// Clone returns an independent copy of the sequence.
func (s ObservationSequence) Clone() ObservationSequence {
	if s == nil {
		return nil
	}
	out := make(ObservationSequence, len(s))
	copy(out, s)
	return out
}

// Contribution is the signed attribution of one feature to a score.
type Contribution struct {
	Feature FeatureKey `json:"feature"`
	Value   float64    `json:"value"`
}

// ContributionSet holds the per-feature contributions for one observation plus
// the base value the contributions are measured from. Contributions are kept
// in schema order and only name schema features.
type ContributionSet struct {
	BaseValue     float64        `json:"base_value"`
	Contributions []Contribution `json:"contributions"`
}

// NewContributionSet builds a set from a feature map, ordering entries by the
// observation schema. Keys outside the schema are rejected.
func NewContributionSet(baseValue float64, values map[string]float64) (ContributionSet, error) {
	for key := range values {
		if !FeatureKey(key).IsValid() {
			return ContributionSet{}, fmt.Errorf("contribution for unknown feature %q", key)
		}
	}

	set := ContributionSet{
		BaseValue:     baseValue,
		Contributions: make([]Contribution, 0, len(values)),
	}
	for _, f := range ObservationSchema {
		if v, ok := values[string(f.Key)]; ok {
			set.Contributions = append(set.Contributions, Contribution{Feature: f.Key, Value: v})
		}
	}
	return set, nil
}

// Value returns the contribution of key, if present.
func (c ContributionSet) Value(key FeatureKey) (float64, bool) {
	for _, entry := range c.Contributions {
		if entry.Feature == key {
			return entry.Value, true
		}
	}
	return 0, false
}

// Total returns the sum of all contributions.
func (c ContributionSet) Total() float64 {
	var sum float64
	for _, entry := range c.Contributions {
		sum += entry.Value
	}
	return sum
}

// PredictionBatch is the validated outcome of one submission: one score and
// one contribution set per submitted observation, in submission order.
type PredictionBatch struct {
	Predictions   []float64         `json:"predictions"`
	Contributions []ContributionSet `json:"contributions"`
}

// Len returns the number of scored observations.
func (b *PredictionBatch) Len() int {
	return len(b.Predictions)
}
