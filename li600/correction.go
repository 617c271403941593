package li600

import (
	"fmt"
	"os"

	"github.com/hhkbp2/go-logging"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v2"
)

// Process-wide configuration of one correction run. Read-only once the run
// starts.
type CorrectionParams struct {
	// 1 if hypostomatous, 2 if amphistomatous, or anywhere in between;
	// applied as a linear scale on the solved one-sided gsw
	StomatalSidedness float64 `yaml:"stomatal_sidedness"`
	// J/s/C, instrument self-heating conductance
	ThermalConductance float64 `yaml:"thermal_conductance"`
	// "full" (3-equation system) or "reduced" (legacy energy balance)
	Model string `yaml:"model"`
}

const (
	ModelFull    = "full"
	ModelReduced = "reduced"
)

func DefaultParams() CorrectionParams {
	return CorrectionParams{
		StomatalSidedness:  1.0,
		ThermalConductance: 0.007,
		Model:              ModelFull,
	}
}

// Validate rejects out-of-range parameters before any row is processed.
func (p CorrectionParams) Validate() error {
	if p.StomatalSidedness < 1.0 || p.StomatalSidedness > 2.0 {
		return fmt.Errorf("stomatal_sidedness must be within [1,2], got %g", p.StomatalSidedness)
	}
	if !(p.ThermalConductance > 0) {
		return fmt.Errorf("thermal_conductance must be > 0, got %g", p.ThermalConductance)
	}
	if p.Model != ModelFull && p.Model != ModelReduced {
		return fmt.Errorf("model must be %q or %q, got %q", ModelFull, ModelReduced, p.Model)
	}
	return nil
}

// """Load correction parameters from a YAML file.
//
// Missing keys keep their defaults. The result is validated by the caller
// through Correct.
// """
func LoadParams(path string) (CorrectionParams, error) {
	p := DefaultParams()
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// Derived outputs for one observation.
type CorrectedRow struct {
	TIn       float64 // C (inlet air temperature, = Tref)
	TOut      float64 // C (solved outlet air temperature)
	TaChamb   float64 // C (chamber air temperature, midpoint assumption)
	WChamb    float64 // mol/mol (chamber water vapor mole fraction)
	E         float64 // mol/m^2/s (transpiration rate)
	Gsw       float64 // mol/m^2/s (solved one-sided conductance)
	GswTotal  float64 // mol/m^2/s (sidedness applied)
	Sidedness float64
	Fallback  bool    // true when the solve failed and the row was zeroed
	SSR       float64 // sum of squared residuals at termination
}

// A RowCorrector recovers the corrected outputs for one observation. The two
// implementations are the divergent historical variants of the correction,
// unified behind one interface so downstream consumers can select either.
type RowCorrector interface {
	Name() string
	CorrectRow(obs Observation, params CorrectionParams) CorrectedRow
}

// NewRowCorrector selects a correction model by name.
func NewRowCorrector(model string, k Constants) (RowCorrector, error) {
	switch model {
	case ModelFull:
		return &FullThreeEquation{k: k}, nil
	case ModelReduced:
		return &ReducedEnergyBalance{k: k}, nil
	}
	return nil, fmt.Errorf("unknown correction model %q", model)
}

// FullThreeEquation solves the coupled system of equations (14, 15, 16) from
// Rizzo and Bailey (2025) for (T_out, E, gsw) simultaneously.
type FullThreeEquation struct {
	k Constants
}

func (m *FullThreeEquation) Name() string { return ModelFull }

func (m *FullThreeEquation) CorrectRow(obs Observation, params CorrectionParams) CorrectedRow {
	k := m.k

	TIn := obs.Tref        // C (inlet temp, assumed equal to Tref)
	TLeaf := obs.Tleaf     // C
	RhIn := obs.RhR / 100  // decimal
	RhOut := obs.RhS / 100 // decimal
	uIn := obs.Flow * 1e-6 // mol/s
	Patm := obs.Patm       // kPa
	C := params.ThermalConductance

	// """System of equations to solve"""
	equations := func(out, vars []float64) {
		TOut, E, gsw := vars[0], vars[1], vars[2]

		// chamber conditions (assumptions)
		TChamb := 0.5 * (TIn + TOut)
		RhChamb := 0.5 * (RhIn + RhOut)

		WChamb := k.W(TChamb, RhChamb, Patm)
		WIn := k.W(TIn, RhIn, Patm)
		WOut := k.W(TIn, RhOut, Patm) // T_out is diffused here, equal to T_in
		WLeaf := k.W(TLeaf, 1.0, Patm)

		hIn := k.H(TIn, RhIn, Patm)
		hOut := k.H(TIn, RhOut, Patm) // T_out is diffused here, equal to T_in

		Q := k.SensibleHeat(C, TIn, TChamb)
		gtw := gsw * k.Gbw / (gsw + k.Gbw)

		out[0] = E - gtw*(WLeaf-WChamb)
		out[1] = E - uIn*(WOut-WIn)/(k.S*(1-WOut))
		out[2] = E - ((Q+uIn*hIn)/hOut-uIn)/k.S
	}

	E0 := obs.EApparent
	if !obs.HasEApparent {
		// conductance-derived seed when the export has no E_apparent column
		E0 = obs.Gsw * (k.W(TLeaf, 1.0, Patm) - k.W(TIn, RhIn, Patm))
	}
	res := SolveSystem(equations, []float64{TIn - 0.1, E0, 0.75 * obs.Gsw})

	row := CorrectedRow{
		TIn:       TIn,
		Sidedness: params.StomatalSidedness,
		SSR:       res.SSR,
	}
	if res.Converged {
		row.TOut = res.X[0]
		row.E = res.X[1]
		row.Gsw = res.X[2]
	} else {
		// solution didn't converge, use zeros
		row.Fallback = true
	}

	row.TaChamb = 0.5 * (TIn + row.TOut)
	row.WChamb = k.W(row.TaChamb, 0.5*(RhIn+RhOut), Patm)
	row.GswTotal = row.Gsw * params.StomatalSidedness
	return row
}

// ReducedEnergyBalance is the legacy variant: a single-unknown solve of the
// inlet-to-outlet energy balance for T_out, with E and gsw derived
// algebraically afterwards. The chamber humidity is taken as the outlet
// humidity rather than the inlet/outlet midpoint.
type ReducedEnergyBalance struct {
	k Constants
}

func (m *ReducedEnergyBalance) Name() string { return ModelReduced }

func (m *ReducedEnergyBalance) CorrectRow(obs Observation, params CorrectionParams) CorrectedRow {
	k := m.k

	TIn := obs.Tref
	TLeaf := obs.Tleaf
	RhIn := obs.RhR / 100
	RhOut := obs.RhS / 100
	uIn := obs.Flow * 1e-6 // mol/s
	Patm := obs.Patm
	RhChamb := RhOut

	hIn := k.H(TIn, RhIn, Patm)
	Q := k.SensibleHeat(params.ThermalConductance, TLeaf, TIn)

	// implicit equation of T_out: heat picked up from the leaf side balances
	// the enthalpy rise of the air stream
	energy := func(out, vars []float64) {
		hOut := k.H(vars[0], RhOut, Patm)
		out[0] = Q - uIn*(hOut-hIn)
	}
	res := SolveSystem(energy, []float64{TIn})

	row := CorrectedRow{
		TIn:       TIn,
		Sidedness: params.StomatalSidedness,
		SSR:       res.SSR,
	}
	if res.Converged {
		row.TOut = res.X[0]
	} else {
		row.Fallback = true
	}

	row.TaChamb = 0.5 * (TIn + row.TOut)
	row.WChamb = k.W(row.TaChamb, RhChamb, Patm)

	if !row.Fallback {
		WIn := k.W(TIn, RhIn, Patm)
		WLeaf := k.W(TLeaf, 1.0, Patm)
		E := uIn * (row.WChamb - WIn) / (k.S * (1 - row.WChamb)) // mol/m^2/s
		gtw := E / (WLeaf - row.WChamb)
		row.E = E
		row.Gsw = 1 / (1/gtw - 1/k.Gbw)
	}
	row.GswTotal = row.Gsw * params.StomatalSidedness
	return row
}

// Result of a whole correction run, for run-level quality reporting.
type RunSummary struct {
	Rows           int
	FallbackRows   int     // rows degraded to zeros by the fallback policy
	MeanCorrection float64 // mean |gsw_corrected - gsw| over all rows
}

// """Apply the correction to every row of the table.
//
// Args:
//
//	data:     the ingested LI-600 table; corrected columns are attached to it
//	params:   validated before any row is processed
//	parallel: fan the independent row solves out across goroutines; output
//	          order is restored by index and matches input order either way
//
// Returns:
//
//	RunSummary: fallback count and mean correction magnitude, so systematic
//	solver trouble is visible instead of silently zeroed rows.
//
// Per-row solve failures do not abort the run: the affected row's outputs
// (T_out, E, gsw) are forced to zero and the row is logged with its residual
// norm. This lossy behavior is intentional and matches the reference tool.
// """
func Correct(data *Li600Data, params CorrectionParams, parallel bool) (RunSummary, error) {
	logger := logging.GetLogger("li600")

	if err := params.Validate(); err != nil {
		return RunSummary{}, err
	}
	corrector, err := NewRowCorrector(params.Model, DefaultConstants())
	if err != nil {
		return RunSummary{}, err
	}

	n := data.Len()
	corrected := make([]CorrectedRow, n)

	if parallel {
		type rowAndIndex struct {
			Index int
			Row   CorrectedRow
		}
		c := make(chan rowAndIndex, n)
		for i := 0; i < n; i++ {
			go func(i int) {
				c <- rowAndIndex{i, corrector.CorrectRow(data.Observation(i), params)}
			}(i)
		}
		for i := 0; i < n; i++ {
			ret := <-c
			corrected[ret.Index] = ret.Row
		}
	} else {
		for i := 0; i < n; i++ {
			corrected[i] = corrector.CorrectRow(data.Observation(i), params)
		}
	}

	data.GswCorrected = make([]float64, n)
	data.TInCorrected = make([]float64, n)
	data.TaChambCorrected = make([]float64, n)
	data.TOutCorrected = make([]float64, n)
	data.WChambCorrected = make([]float64, n)
	data.StomatalSidedness = make([]float64, n)

	summary := RunSummary{Rows: n}
	diffs := make([]float64, n)
	for i, row := range corrected {
		data.GswCorrected[i] = row.GswTotal
		data.TInCorrected[i] = row.TIn
		data.TaChambCorrected[i] = row.TaChamb
		data.TOutCorrected[i] = row.TOut
		data.WChambCorrected[i] = row.WChamb
		data.StomatalSidedness[i] = row.Sidedness

		diffs[i] = absDiff(row.GswTotal, data.Gsw[i])
		if row.Fallback {
			summary.FallbackRows++
			logger.Warnf("row %d did not converge (ssr=%g), outputs zeroed", i+1, row.SSR)
		}
	}
	if n > 0 {
		summary.MeanCorrection = stat.Mean(diffs, nil)
	}

	logger.Infof("corrected %d rows with model=%s, %d fallback", n, corrector.Name(), summary.FallbackRows)
	return summary, nil
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
