package model

import "fmt"

// TempUnits selects the temperature scale entity values are reported in.
type TempUnits string

// Temperature units.
const (
	UnitsFahrenheit TempUnits = "F"
	UnitsCelsius    TempUnits = "C"
)

// FToC converts degrees Fahrenheit to Celsius.
func FToC(f float64) float64 {
	return (f - 32.0) * 5.0 / 9.0
}

// CToF converts degrees Celsius to Fahrenheit.
func CToF(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// ConvertTemp converts a temperature between scales. Same-scale
// conversion is the identity.
func ConvertTemp(value float64, from, to TempUnits) (float64, error) {
	if from == to {
		return value, nil
	}
	switch {
	case from == UnitsFahrenheit && to == UnitsCelsius:
		return FToC(value), nil
	case from == UnitsCelsius && to == UnitsFahrenheit:
		return CToF(value), nil
	default:
		return 0, fmt.Errorf("%w: %q to %q", ErrUnknownUnits, from, to)
	}
}
