package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/contactsim/contactsim/sim"
	"github.com/contactsim/contactsim/sim/agentsmove"
	"github.com/contactsim/contactsim/sim/dialer"
	"github.com/contactsim/contactsim/sim/stopping"
)

// bundleValidate checks struct tags of the bundle types.
var bundleValidate = validator.New()

// ExperimentBundle is the YAML description of one experiment.
// Nil pointer fields mean "not set in YAML".
type ExperimentBundle struct {
	Seed         *int64            `yaml:"seed"`
	Replications ReplicationConfig `yaml:"replications"`
	Model        ModelConfig       `yaml:"model"`
	Stopping     *StoppingConfig   `yaml:"stopping"`
	Measures     []string          `yaml:"measures"` // empty collects every measure
}

// ReplicationConfig controls how many replications run and how.
type ReplicationConfig struct {
	Initial  int `yaml:"initial" validate:"gte=1"`
	Max      int `yaml:"max" validate:"gte=0"` // engine cap; 0 means initial
	Parallel int `yaml:"parallel" validate:"gte=0"`
}

// ModelConfig is the YAML form of Model. Skills reference contact types by name.
type ModelConfig struct {
	Periods        int                `yaml:"periods" validate:"gte=1"`
	PeriodDuration float64            `yaml:"period_duration" validate:"gt=0"`
	CheckedPeriod  float64            `yaml:"checked_period" validate:"gt=0"`
	WindowPeriods  int                `yaml:"window_periods" validate:"gte=1"`
	DialerEpoch    float64            `yaml:"dialer_epoch" validate:"gte=0"`
	AgentsMove     *AgentsMoveConfig  `yaml:"agents_move"`
	Inbound        []InboundConfig    `yaml:"inbound" validate:"dive"`
	Outbound       []OutboundConfig   `yaml:"outbound" validate:"dive"`
	Groups         []AgentGroupConfig `yaml:"groups" validate:"required,min=1,dive"`
}

// AgentsMoveConfig holds the controller thresholds s1 ≤ s2.
type AgentsMoveConfig struct {
	LowThreshold  float64 `yaml:"low_threshold" validate:"gte=0,lte=1"`
	HighThreshold float64 `yaml:"high_threshold" validate:"gte=0,lte=1"`
}

// InboundConfig describes an inbound contact type.
type InboundConfig struct {
	Name         string  `yaml:"name" validate:"required"`
	ArrivalRate  float64 `yaml:"arrival_rate" validate:"gte=0"`
	MeanService  float64 `yaml:"mean_service" validate:"gt=0"`
	MeanPatience float64 `yaml:"mean_patience" validate:"gte=0"`
	AWT          float64 `yaml:"awt" validate:"gte=0"`
}

// OutboundConfig describes an outbound call type.
type OutboundConfig struct {
	Name             string       `yaml:"name" validate:"required"`
	ReachProbability float64      `yaml:"reach_probability" validate:"gte=0,lte=1"`
	DialDelay        float64      `yaml:"dial_delay" validate:"gte=0"`
	MeanService      float64      `yaml:"mean_service" validate:"gt=0"`
	MinTotalFree     int          `yaml:"min_total_free"`
	MinTargetFree    int          `yaml:"min_target_free"`
	Dialer           DialerConfig `yaml:"dialer"`
}

// DialerConfig selects and parametrizes a dialer policy.
type DialerConfig struct {
	Policy            string   `yaml:"policy" validate:"required"`
	Kappa             *float64 `yaml:"kappa"`
	C                 *int     `yaml:"c"`
	BadCallThreshold  *float64 `yaml:"bad_call_threshold"`
	MismatchThreshold *float64 `yaml:"mismatch_threshold"`
}

// AgentGroupConfig describes an agent group.
type AgentGroupConfig struct {
	Name      string   `yaml:"name" validate:"required"`
	Size      int      `yaml:"size" validate:"gte=0"`
	Role      string   `yaml:"role"` // empty means blend
	Inbound   []string `yaml:"inbound"`
	Outbound  []string `yaml:"outbound"`
	DialRatio float64  `yaml:"dial_ratio" validate:"gte=0"`
}

// StoppingConfig holds the statistical stopping parameters.
type StoppingConfig struct {
	Level     float64       `yaml:"level"`
	Threshold float64       `yaml:"threshold"`
	Target    *TargetConfig `yaml:"target"`
	MaxReps   int           `yaml:"max_reps"`
}

// TargetConfig names the cell the stopping condition tests. Row and column
// default to the aggregate cell.
type TargetConfig struct {
	Measure string `yaml:"measure"`
	Row     *int   `yaml:"row"`
	Column  *int   `yaml:"column"`
}

// LoadExperimentBundle reads and parses a YAML experiment file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadExperimentBundle(path string) (*ExperimentBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experiment config: %w", err)
	}
	return ParseExperimentBundle(data)
}

// ParseExperimentBundle parses YAML bytes with strict field checking.
func ParseExperimentBundle(data []byte) (*ExperimentBundle, error) {
	var b ExperimentBundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&b); err != nil {
		return nil, fmt.Errorf("parsing experiment config: %w", err)
	}
	return &b, nil
}

// Validate checks field ranges, policy and measure names, skill references
// and the cross-field rules. All configuration errors surface here, before
// any replication runs.
func (b *ExperimentBundle) Validate() error {
	if err := bundleValidate.Struct(b); err != nil {
		return fmt.Errorf("invalid experiment config: %w", describeValidation(err))
	}
	m := b.Model
	if len(m.Inbound)+len(m.Outbound) == 0 {
		return fmt.Errorf("model needs at least one inbound or outbound type")
	}
	if len(m.Outbound) > 0 && !(m.DialerEpoch > 0) {
		return fmt.Errorf("dialer_epoch must be positive when outbound types exist, got %g", m.DialerEpoch)
	}
	inbound, err := indexNames("inbound", len(m.Inbound), func(i int) string { return m.Inbound[i].Name })
	if err != nil {
		return err
	}
	outbound, err := indexNames("outbound", len(m.Outbound), func(i int) string { return m.Outbound[i].Name })
	if err != nil {
		return err
	}
	if _, err := indexNames("group", len(m.Groups), func(i int) string { return m.Groups[i].Name }); err != nil {
		return err
	}

	usesAgentsMove := false
	for _, o := range m.Outbound {
		spec, err := o.Dialer.spec()
		if err != nil {
			return fmt.Errorf("outbound %q: %w", o.Name, err)
		}
		if spec.Kind == dialer.AgentsMove {
			usesAgentsMove = true
			continue
		}
		if _, err := dialer.New(spec, nil, nil); err != nil {
			return fmt.Errorf("outbound %q: %w", o.Name, err)
		}
	}
	if usesAgentsMove && m.AgentsMove == nil {
		return fmt.Errorf("AGENTSMOVE needs an agents_move section")
	}
	if m.AgentsMove != nil && m.AgentsMove.LowThreshold > m.AgentsMove.HighThreshold {
		return fmt.Errorf("agents_move: low_threshold %g must not exceed high_threshold %g",
			m.AgentsMove.LowThreshold, m.AgentsMove.HighThreshold)
	}

	for _, g := range m.Groups {
		if g.Role != "" {
			if _, err := agentsmove.ParseRole(g.Role); err != nil {
				return fmt.Errorf("group %q: %w", g.Name, err)
			}
		}
		if _, err := resolveSkills(g.Inbound, inbound); err != nil {
			return fmt.Errorf("group %q inbound skills: %w", g.Name, err)
		}
		if _, err := resolveSkills(g.Outbound, outbound); err != nil {
			return fmt.Errorf("group %q outbound skills: %w", g.Name, err)
		}
	}

	measures, err := b.measures()
	if err != nil {
		return err
	}
	if b.Stopping != nil {
		cfg, err := b.Stopping.config()
		if err != nil {
			return err
		}
		if _, err := stopping.NewCondition(cfg); err != nil {
			return err
		}
		if !containsMeasure(measures, cfg.Target.Measure) {
			return fmt.Errorf("stopping target %s is not among the collected measures", cfg.Target.Measure)
		}
		dims := sim.Dimensions{
			InboundTypes:  len(b.Model.Inbound),
			OutboundTypes: len(b.Model.Outbound),
			AgentGroups:   len(b.Model.Groups),
			Periods:       b.Model.Periods,
		}
		if err := cfg.Target.CheckCell(dims); err != nil {
			return fmt.Errorf("stopping target: %w", err)
		}
	}
	return nil
}

// BuildModel converts a validated bundle into a Model.
func (b *ExperimentBundle) BuildModel() (*Model, error) {
	mc := b.Model
	m := &Model{
		Periods:        mc.Periods,
		PeriodDuration: mc.PeriodDuration,
		CheckedPeriod:  mc.CheckedPeriod,
		WindowPeriods:  mc.WindowPeriods,
		DialerEpoch:    mc.DialerEpoch,
	}
	if mc.AgentsMove != nil {
		m.AgentsMove = agentsmove.Config{
			LowThreshold:  mc.AgentsMove.LowThreshold,
			HighThreshold: mc.AgentsMove.HighThreshold,
			Periods:       mc.WindowPeriods,
		}
	}
	inbound := make(map[string]int, len(mc.Inbound))
	for i, in := range mc.Inbound {
		inbound[in.Name] = i
		m.Inbound = append(m.Inbound, InboundType{
			Name:         in.Name,
			ArrivalRate:  in.ArrivalRate,
			MeanService:  in.MeanService,
			MeanPatience: in.MeanPatience,
			AWT:          in.AWT,
		})
	}
	outbound := make(map[string]int, len(mc.Outbound))
	for i, out := range mc.Outbound {
		outbound[out.Name] = i
		spec, err := out.Dialer.spec()
		if err != nil {
			return nil, fmt.Errorf("outbound %q: %w", out.Name, err)
		}
		m.Outbound = append(m.Outbound, OutboundType{
			Name:             out.Name,
			ReachProbability: out.ReachProbability,
			DialDelay:        out.DialDelay,
			MeanService:      out.MeanService,
			Dialer:           spec,
			MinTotalFree:     out.MinTotalFree,
			MinTargetFree:    out.MinTargetFree,
		})
	}
	for _, g := range mc.Groups {
		role := agentsmove.Blend
		if g.Role != "" {
			r, err := agentsmove.ParseRole(g.Role)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", g.Name, err)
			}
			role = r
		}
		in, err := resolveSkills(g.Inbound, inbound)
		if err != nil {
			return nil, fmt.Errorf("group %q inbound skills: %w", g.Name, err)
		}
		out, err := resolveSkills(g.Outbound, outbound)
		if err != nil {
			return nil, fmt.Errorf("group %q outbound skills: %w", g.Name, err)
		}
		m.Groups = append(m.Groups, AgentGroup{
			Name:      g.Name,
			Size:      g.Size,
			Role:      role,
			Inbound:   in,
			Outbound:  out,
			DialRatio: g.DialRatio,
		})
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildCondition returns the stopping condition, or nil when the bundle has
// no stopping section.
func (b *ExperimentBundle) BuildCondition() (*stopping.Condition, error) {
	if b.Stopping == nil {
		return nil, nil
	}
	cfg, err := b.Stopping.config()
	if err != nil {
		return nil, err
	}
	return stopping.NewCondition(cfg)
}

// CollectedMeasures returns the measures the registry should hold.
func (b *ExperimentBundle) CollectedMeasures() ([]sim.PerformanceMeasure, error) {
	return b.measures()
}

func (b *ExperimentBundle) measures() ([]sim.PerformanceMeasure, error) {
	if len(b.Measures) == 0 {
		return sim.Measures(), nil
	}
	out := make([]sim.PerformanceMeasure, 0, len(b.Measures))
	for _, name := range b.Measures {
		pm, err := sim.ParsePerformanceMeasure(name)
		if err != nil {
			return nil, err
		}
		if !containsMeasure(out, pm) {
			out = append(out, pm)
		}
	}
	return out, nil
}

// spec resolves the policy name and fills the (κ, c) defaults: fixed kinds
// carry their own, DIALXFREE and the rate-gated kind need both set.
func (d DialerConfig) spec() (dialer.Spec, error) {
	kind, err := dialer.ParsePolicyKind(d.Policy)
	if err != nil {
		return dialer.Spec{}, err
	}
	spec := dialer.Spec{Kind: kind}
	switch kind {
	case dialer.DialXFree, dialer.DialFreeBadCallMismatchRates:
		if d.Kappa == nil || d.C == nil {
			return dialer.Spec{}, fmt.Errorf("%s requires kappa and c", kind)
		}
		if *d.Kappa < 0 || *d.C < 0 {
			return dialer.Spec{}, fmt.Errorf("%s: kappa and c must be non-negative, got (%g, %d)", kind, *d.Kappa, *d.C)
		}
		spec.Kappa, spec.C = *d.Kappa, *d.C
	}
	if kind == dialer.DialFreeBadCallMismatchRates {
		if d.BadCallThreshold == nil || d.MismatchThreshold == nil {
			return dialer.Spec{}, fmt.Errorf("%s requires bad_call_threshold and mismatch_threshold", kind)
		}
		spec.BadCallThreshold, spec.MismatchThreshold = *d.BadCallThreshold, *d.MismatchThreshold
	}
	return spec, nil
}

func (s *StoppingConfig) config() (stopping.Config, error) {
	cfg := stopping.Config{Level: s.Level, Threshold: s.Threshold, MaxReps: s.MaxReps}
	if s.MaxReps < 0 {
		return cfg, fmt.Errorf("stopping: max_reps must be non-negative, got %d", s.MaxReps)
	}
	if s.Target == nil || s.Target.Measure == "" {
		return cfg, errors.New("stopping: target measure is required")
	}
	pm, err := sim.ParsePerformanceMeasure(s.Target.Measure)
	if err != nil {
		return cfg, fmt.Errorf("stopping: %w", err)
	}
	t := stopping.Target{Measure: pm, Row: sim.Last, Column: sim.Last}
	if s.Target.Row != nil {
		t.Row = *s.Target.Row
	}
	if s.Target.Column != nil {
		t.Column = *s.Target.Column
	}
	cfg.Target = &t
	return cfg, nil
}

func indexNames(kind string, n int, name func(int) string) (map[string]int, error) {
	idx := make(map[string]int, n)
	for i := 0; i < n; i++ {
		if _, dup := idx[name(i)]; dup {
			return nil, fmt.Errorf("duplicate %s name %q", kind, name(i))
		}
		idx[name(i)] = i
	}
	return idx, nil
}

func resolveSkills(names []string, idx map[string]int) ([]int, error) {
	out := make([]int, 0, len(names))
	for _, n := range names {
		i, ok := idx[n]
		if !ok {
			return nil, fmt.Errorf("unknown contact type %q", n)
		}
		out = append(out, i)
	}
	return out, nil
}

func containsMeasure(list []sim.PerformanceMeasure, pm sim.PerformanceMeasure) bool {
	for _, x := range list {
		if x == pm {
			return true
		}
	}
	return false
}

// describeValidation flattens validator errors into "field: rule" pairs.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), rule))
	}
	return errors.New(strings.Join(parts, "; "))
}
