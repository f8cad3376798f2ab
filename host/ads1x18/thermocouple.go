package ads1x18

import "math"

// NIST ITS-90 type K reference functions. Voltages are in millivolts.
var (
	kEMFBelowZero = []float64{
		0.0,
		0.394501280250e-1,
		0.236223735980e-4,
		-0.328589067840e-6,
		-0.499048287770e-8,
		-0.675090591730e-10,
		-0.574103274280e-12,
		-0.310888728940e-14,
		-0.104516093650e-16,
		-0.198892668780e-19,
		-0.163226974860e-22,
	}
	kEMFAboveZero = []float64{
		-0.176004136860e-1,
		0.389212049750e-1,
		0.185587700320e-4,
		-0.994575928740e-7,
		0.318409457190e-9,
		-0.560728448890e-12,
		0.560750590590e-15,
		-0.320207200030e-18,
		0.971511471520e-22,
		-0.121047212750e-25,
	}
	kEMFExp = [3]float64{0.1185976, -0.118343200000e-3, 0.126968600000e3}

	kTempBelowZero = []float64{
		0.0, 2.5173462e1, -1.1662878, -1.0833638, -8.9773540e-1,
		-3.7342377e-1, -8.6632643e-2, -1.0450598e-2, -5.1920577e-4,
	}
	kTempTo500 = []float64{
		0.0, 2.508355e1, 7.860106e-2, -2.503131e-1, 8.315270e-2,
		-1.228034e-2, 9.804036e-4, -4.413030e-5, 1.057734e-6, -1.052755e-8,
	}
	kTempAbove500 = []float64{
		-1.318058e2, 4.830222e1, -1.646031, 5.464731e-2,
		-9.650715e-4, 8.802193e-6, -3.110810e-8,
	}
)

// emf at 500 °C, where the inverse function changes range
const kEMF500 = 20.644

func poly(c []float64, x float64) float64 {
	sum := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		sum = sum*x + c[i]
	}
	return sum
}

// TypeKMillivolts returns the thermocouple emf at celsius
func TypeKMillivolts(celsius float64) float64 {
	if celsius <= 0 {
		return poly(kEMFBelowZero, celsius)
	}
	d := celsius - kEMFExp[2]
	return poly(kEMFAboveZero, celsius) + kEMFExp[0]*math.Exp(kEMFExp[1]*d*d)
}

// TypeKCelsius is the inverse of TypeKMillivolts
func TypeKCelsius(mv float64) float64 {
	switch {
	case mv < 0:
		return poly(kTempBelowZero, mv)
	case mv < kEMF500:
		return poly(kTempTo500, mv)
	}
	return poly(kTempAbove500, mv)
}
