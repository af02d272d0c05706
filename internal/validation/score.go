package validation

import "fmt"

// Signals are the raw review outputs a score is computed from.
type Signals struct {
	BuildSuccess bool    `json:"build_success"`
	TestsPassed  int     `json:"tests_passed"`
	TestsTotal   int     `json:"tests_total"`
	LintWarnings int     `json:"lint_warnings"`
	CodeQuality  float64 `json:"code_quality"`
	Security     float64 `json:"security"`
}

// EvaluationScore is the comparable quality of one candidate. Total is in
// [0, 100]; the remaining fields are the inputs that produced it.
type EvaluationScore struct {
	Total float64 `json:"total"`
	Signals
}

// Weights is the scoring policy. Each field is the number of points the
// component is worth at its best; LintPenalty is subtracted per warning from
// the Lint points. FailedBuildFactor scales every non-build component when
// the build fails.
type Weights struct {
	Build             float64 `yaml:"build" json:"build"`
	Tests             float64 `yaml:"tests" json:"tests"`
	Lint              float64 `yaml:"lint" json:"lint"`
	LintPenalty       float64 `yaml:"lint_penalty" json:"lint_penalty"`
	CodeQuality       float64 `yaml:"code_quality" json:"code_quality"`
	Security          float64 `yaml:"security" json:"security"`
	FailedBuildFactor float64 `yaml:"failed_build_factor" json:"failed_build_factor"`
}

// DefaultWeights caps a failed build at 10.5 points, below the 30 a build
// that compiles starts from.
var DefaultWeights = Weights{
	Build:             30,
	Tests:             35,
	Lint:              10,
	LintPenalty:       1,
	CodeQuality:       15,
	Security:          10,
	FailedBuildFactor: 0.15,
}

// Validate reports whether w keeps the score monotonic and a failed build
// strictly below any build that compiles.
func (w Weights) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"build", w.Build},
		{"tests", w.Tests},
		{"lint", w.Lint},
		{"lint_penalty", w.LintPenalty},
		{"code_quality", w.CodeQuality},
		{"security", w.Security},
		{"failed_build_factor", w.FailedBuildFactor},
	} {
		if f.v < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
	}
	if w.FailedBuildFactor > 1 {
		return fmt.Errorf("failed_build_factor must be at most 1")
	}
	if rest := w.Tests + w.Lint + w.CodeQuality + w.Security; w.Build <= w.FailedBuildFactor*rest {
		return fmt.Errorf("build (%g) must exceed failed_build_factor × other weights (%g)", w.Build, w.FailedBuildFactor*rest)
	}
	return nil
}

// WeightOverrides is a partial Weights read from configuration. Unset
// fields keep the base value.
type WeightOverrides struct {
	Build             *float64 `yaml:"build"`
	Tests             *float64 `yaml:"tests"`
	Lint              *float64 `yaml:"lint"`
	LintPenalty       *float64 `yaml:"lint_penalty"`
	CodeQuality       *float64 `yaml:"code_quality"`
	Security          *float64 `yaml:"security"`
	FailedBuildFactor *float64 `yaml:"failed_build_factor"`
}

// Apply returns base with every set field of o replaced.
func (o WeightOverrides) Apply(base Weights) Weights {
	for _, f := range []struct {
		src *float64
		dst *float64
	}{
		{o.Build, &base.Build},
		{o.Tests, &base.Tests},
		{o.Lint, &base.Lint},
		{o.LintPenalty, &base.LintPenalty},
		{o.CodeQuality, &base.CodeQuality},
		{o.Security, &base.Security},
		{o.FailedBuildFactor, &base.FailedBuildFactor},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	return base
}

func (w Weights) isZero() bool {
	return w == Weights{}
}

func (w Weights) max() float64 {
	return w.Build + w.Tests + w.Lint + w.CodeQuality + w.Security
}

// Calculate scores a candidate with DefaultWeights.
func Calculate(buildSuccess bool, testsPassed, testsTotal, lintWarnings int, codeQuality, security float64) EvaluationScore {
	return CalculateWithWeights(Signals{
		BuildSuccess: buildSuccess,
		TestsPassed:  testsPassed,
		TestsTotal:   testsTotal,
		LintWarnings: lintWarnings,
		CodeQuality:  codeQuality,
		Security:     security,
	}, DefaultWeights)
}

// CalculateWithWeights scores s under w, normalised to [0, 100]. A zero w
// means DefaultWeights. Weights must be non-negative for the score to be
// monotonic in every input.
func CalculateWithWeights(s Signals, w Weights) EvaluationScore {
	if w.isZero() {
		w = DefaultWeights
	}
	max := w.max()
	if max <= 0 {
		return EvaluationScore{Signals: s}
	}

	lint := w.Lint - float64(nonNegative(s.LintWarnings))*w.LintPenalty
	if lint < 0 {
		lint = 0
	}
	rest := w.Tests*passRatio(s.TestsPassed, s.TestsTotal) +
		lint +
		w.CodeQuality*clamp01(s.CodeQuality) +
		w.Security*clamp01(s.Security)

	var total float64
	if s.BuildSuccess {
		total = w.Build + rest
	} else {
		total = rest * clamp01(w.FailedBuildFactor)
	}
	total = total / max * 100
	if total > 100 {
		total = 100
	}
	return EvaluationScore{Total: total, Signals: s}
}

func passRatio(passed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return clamp01(float64(nonNegative(passed)) / float64(total))
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
