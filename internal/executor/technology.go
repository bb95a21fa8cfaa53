package executor

// Technology is the rendering technology a fragment was written for.
type Technology string

const (
	Canvas  Technology = "canvas"
	Three   Technology = "three"
	WebGL   Technology = "webgl"
	SVG     Technology = "svg"
	CSS     Technology = "css"
	P5      Technology = "p5"
	HTML    Technology = "html"
	Unknown Technology = "unknown"
)

// Technologies lists every tag in classification priority order.
var Technologies = []Technology{Three, WebGL, P5, Canvas, SVG, CSS, HTML, Unknown}

// ParseTechnology returns the tag for s, or Unknown.
func ParseTechnology(s string) Technology {
	for _, t := range Technologies {
		if string(t) == s {
			return t
		}
	}
	return Unknown
}

// RiskLevel grades a security finding.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders levels: low=1 ... critical=4, anything else 0.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

// SupportLevel says how well the headless surface renders a detected feature.
type SupportLevel string

const (
	SupportFull    SupportLevel = "full"
	SupportPartial SupportLevel = "partial"
	SupportNone    SupportLevel = "none"
)

// Feature is one marker found in a fragment's source.
type Feature struct {
	Name       string       `json:"name" yaml:"name"`
	Kind       string       `json:"kind" yaml:"kind"`
	Confidence float64      `json:"confidence" yaml:"confidence"`
	Support    SupportLevel `json:"supportLevel" yaml:"supportLevel"`
}

// Risk is one finding of the security pass.
type Risk struct {
	Level       RiskLevel `json:"level" yaml:"level"`
	Kind        string    `json:"kind" yaml:"kind"`
	Description string    `json:"description" yaml:"description"`
}

// Analysis is the classification of one fragment. It is built fresh for every
// attempt and never mutated afterwards.
type Analysis struct {
	Technology   Technology `json:"technology" yaml:"technology"`
	Confidence   float64    `json:"confidence" yaml:"confidence"`
	Features     []Feature  `json:"detectedFeatures" yaml:"detectedFeatures"`
	Dependencies []string   `json:"dependencies" yaml:"dependencies"`
	Risks        []Risk     `json:"securityRisks" yaml:"securityRisks"`
}

// FailsafeAnalysis is returned when a refinement step fails.
func FailsafeAnalysis() Analysis {
	return Analysis{Technology: Unknown, Confidence: 0.1}
}

// MaxRisk returns the most severe risk level, or "" when there are none.
func (a Analysis) MaxRisk() RiskLevel {
	var worst RiskLevel
	for _, r := range a.Risks {
		if r.Level.Rank() > worst.Rank() {
			worst = r.Level
		}
	}
	return worst
}

// RisksAtLeast returns the risks at or above level.
func (a Analysis) RisksAtLeast(level RiskLevel) []Risk {
	var out []Risk
	for _, r := range a.Risks {
		if r.Level.Rank() >= level.Rank() {
			out = append(out, r)
		}
	}
	return out
}

// HasFeature reports whether a feature with the given name was detected.
func (a Analysis) HasFeature(name string) bool {
	for _, f := range a.Features {
		if f.Name == name {
			return true
		}
	}
	return false
}
