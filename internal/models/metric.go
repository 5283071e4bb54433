package models

import (
	"encoding/json"
	"fmt"
)

type MetricKey string

const (
	MetricStrideAngle      MetricKey = "stride_angle"
	MetricThrowingAngle    MetricKey = "throwing_angle"
	MetricArmSymmetry      MetricKey = "arm_symmetry"
	MetricHipRotation      MetricKey = "hip_rotation"
	MetricElbowHeight      MetricKey = "elbow_height"
	MetricAnkleHeight      MetricKey = "ankle_height"
	MetricShoulderRotation MetricKey = "shoulder_rotation"
	MetricTorsoTiltAngle   MetricKey = "torso_tilt_angle"
	MetricReleaseDistance  MetricKey = "release_distance"
	MetricShoulderToHip    MetricKey = "shoulder_to_hip"
)

// AllMetrics lists the recognised metric keys in chart order.
var AllMetrics = []MetricKey{
	MetricStrideAngle,
	MetricThrowingAngle,
	MetricArmSymmetry,
	MetricHipRotation,
	MetricElbowHeight,
	MetricAnkleHeight,
	MetricShoulderRotation,
	MetricTorsoTiltAngle,
	MetricReleaseDistance,
	MetricShoulderToHip,
}

type MetricUnit string

const (
	UnitDegrees MetricUnit = "deg"
	UnitPercent MetricUnit = "%"
	UnitPixels  MetricUnit = "px"
	UnitMeters  MetricUnit = "m"
)

// ParseLengthUnit accepts the two length units the backend revisions use.
func ParseLengthUnit(s string) (MetricUnit, error) {
	switch MetricUnit(s) {
	case UnitPixels, UnitMeters:
		return MetricUnit(s), nil
	default:
		return "", fmt.Errorf("unknown distance unit %q", s)
	}
}

var metricNames = map[MetricKey]string{
	MetricStrideAngle:      "步幅角度",
	MetricThrowingAngle:    "投擲角度",
	MetricArmSymmetry:      "手臂對稱性",
	MetricHipRotation:      "髖部旋轉",
	MetricElbowHeight:      "手肘高度",
	MetricAnkleHeight:      "腳踝高度",
	MetricShoulderRotation: "肩部旋轉",
	MetricTorsoTiltAngle:   "軀幹傾斜角度",
	MetricReleaseDistance:  "釋放距離",
	MetricShoulderToHip:    "肩髖距離",
}

// Known reports whether k is one of the ten recognised metric keys.
func (k MetricKey) Known() bool {
	_, ok := metricNames[k]
	return ok
}

// Unit returns the unit of the metric. Length metrics (heights and
// distances) report lengthUnit, which differs between backend revisions.
func (k MetricKey) Unit(lengthUnit MetricUnit) MetricUnit {
	switch k {
	case MetricArmSymmetry:
		return UnitPercent
	case MetricStrideAngle, MetricThrowingAngle, MetricHipRotation,
		MetricShoulderRotation, MetricTorsoTiltAngle:
		return UnitDegrees
	default:
		return lengthUnit
	}
}

// Label is the chart legend text, e.g. "步幅角度 (度)".
func (k MetricKey) Label(lengthUnit MetricUnit) string {
	name, ok := metricNames[k]
	if !ok {
		return string(k)
	}
	unit := k.Unit(lengthUnit)
	if unit == UnitDegrees {
		return name + " (度)"
	}
	return fmt.Sprintf("%s (%s)", name, unit)
}

// MetricMap holds the metric values of one frame. A missing key is a gap,
// not a zero.
type MetricMap map[MetricKey]float64

func (m MetricMap) Get(k MetricKey) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[k]
	return v, ok
}

func (m MetricMap) Clone() MetricMap {
	if m == nil {
		return nil
	}
	out := make(MetricMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// UnmarshalJSON keeps only recognised keys with numeric values. Unknown
// keys are ignored; null or non-numeric values are treated as gaps.
func (m *MetricMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(MetricMap, len(raw))
	for name, value := range raw {
		key := MetricKey(name)
		if !key.Known() {
			continue
		}
		var v float64
		if err := json.Unmarshal(value, &v); err != nil || string(value) == "null" {
			continue
		}
		out[key] = v
	}
	*m = out
	return nil
}
