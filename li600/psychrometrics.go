package li600

import "math"

// Physical constants of the psychrometric model and of the LI-600
// measurement head. Injected into the row correctors instead of living as
// package-level state so variants can be tested against each other with the
// same numbers.
type Constants struct {
	A float64 // unitless (empirical magnitude of es vs T)
	B float64 // unitless (empirical slope of es vs T)
	C float64 // C (empirical offset of es vs T)

	Cpa     float64 // J/mol/C (air heat capacity)
	Cpw     float64 // J/mol/C (water heat capacity)
	Lambdaw float64 // J/mol (water latent heat of vaporization)

	S   float64 // m^2 (leaf area inside the aperture)
	Gbw float64 // mol/m^2/s (boundary layer conductance)
}

// Values from Rizzo and Bailey (2025) for the LI-600.
func DefaultConstants() Constants {
	return Constants{
		A:       0.61365,
		B:       17.502,
		C:       240.97,
		Cpa:     29.14,
		Cpw:     33.5,
		Lambdaw: 45502,
		S:       0.441786 * 0.01 * 0.01,
		Gbw:     2.921,
	}
}

// """Saturation vapor pressure vs T function (kPa)
//
// Args:
//
//	T(float64): air temperature [C]
//
// The empirical fit is valid roughly between -40C and +50C; no bound is
// enforced here, callers keep temperatures physical.
// """
func (k Constants) Es(T float64) float64 {
	return k.A * math.Exp(k.B*T/(T+k.C))
}

// """Water vapor mole fraction (mol/mol)
//
// Args:
//
//	T(float64):    air temperature [C]
//	RH(float64):   relative humidity as a decimal [0..1]
//	Patm(float64): atmospheric pressure [kPa]
//
// Patm = 0 is a precondition violation; the non-finite result propagates to
// the solver rather than raising.
// """
func (k Constants) W(T, RH, Patm float64) float64 {
	return k.Es(T) * RH / Patm
}

// """Humidity ratio (mol/mol)
//
// Diverges as Patm approaches Es*RH (saturation at low pressure); the
// non-finite value is a legitimate boundary condition and is propagated.
// """
func (k Constants) Wd(T, RH, Patm float64) float64 {
	e := k.Es(T) * RH
	return e / (Patm - e)
}

// """Enthalpy of moist air (J/mol)"""
func (k Constants) H(T, RH, Patm float64) float64 {
	return k.Cpa*T + k.Wd(T, RH, Patm)*(k.Lambdaw+k.Cpw*T)
}

// """Sensible heat picked up by the air stream (J/s)
//
// Args:
//
//	C(float64): instrument thermal conductance [J/s/C]
//
// """
func (k Constants) SensibleHeat(C, Tin, Tchamb float64) float64 {
	return C * (Tin - Tchamb)
}
