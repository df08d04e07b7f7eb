package axdr

import (
	"fmt"
	"math"

	"github.com/rmg/iso4217"
)

// Unit is the DLMS-assigned physical unit code (Green Book table 4.3).
type Unit uint8

// UnitCurrency is the one code (10) whose accompanying scaled value is not
// a physical quantity but an ISO 4217 numeric currency code.
const UnitCurrency Unit = 10

var unitNames = [...]string{
	"unknown",
	"a", "mo", "wk", "d", "h", "min.", "s", "°", "°C",
	"currency",
	"m", "m/s", "m³", "m³", "m³/h", "m³/h", "m³/d", "m³/d", "l",
	"kg", "N", "Nm", "Pa", "bar", "J", "J/h", "W", "VA", "var",
	"Wh", "VAh", "varh", "A", "C", "V", "V/m", "F", "Ω", "Ωm²/m",
	"Wb", "T", "A/m", "H", "Hz", "1/(Wh)", "1/(varh)", "1/(VAh)", "V²h", "A²h",
	"kg/s", "S", "K", "1/(V²h)", "1/(A²h)", "1/m³", "%", "Ah", "unknown", "unknown",
	"Wh/m³", "J/m³", "Mol %", "g/m³", "Pa s", "J/kg", "g/cm²", "atm", "unknown", "unknown",
	"dBm", "dbµV", "dB",
}

// String returns the DLMS-assigned unit symbol, or "unknown" for a code
// outside the assigned table.
func (u Unit) String() string {
	if int(u) >= len(unitNames) {
		return unitNames[0]
	}
	return unitNames[u]
}

// ScalerUnit is the (exponent, unit) pair DLMS attaches to scaled register
// values: decoded = raw * 10^Scaler, expressed in Unit.
type ScalerUnit struct {
	Scaler int8
	Unit   Unit
}

// ScaledValue applies the scaler to a raw register reading.
func (s ScalerUnit) ScaledValue(raw float64) float64 {
	return raw * math.Pow(10, float64(s.Scaler))
}

// CurrencyName resolves raw as an ISO 4217 numeric currency code when Unit
// is UnitCurrency, returning an error for any other unit.
func (s ScalerUnit) CurrencyName(raw int) (string, error) {
	if s.Unit != UnitCurrency {
		return "", fmt.Errorf("axdr: scaler-unit does not denote a currency (unit=%s)", s.Unit)
	}
	name, _ := iso4217.ByCode(raw)
	if name == "" {
		return "", fmt.Errorf("axdr: unknown iso4217 numeric code %d", raw)
	}
	return name, nil
}

// AsData encodes the pair as the two-element Structure DLMS expects:
// (Integer scaler, Enum unit).
func (s ScalerUnit) AsData() Data {
	return Data{Tag: TagStructure, Value: []Data{
		{Tag: TagInteger, Value: s.Scaler},
		{Tag: TagEnum, Value: uint8(s.Unit)},
	}}
}

// ScalerUnitFromData decodes the two-element (Integer, Enum) Structure a
// meter returns for a scaler-unit attribute.
func ScalerUnitFromData(d Data) (ScalerUnit, error) {
	if d.Tag != TagStructure {
		return ScalerUnit{}, fmt.Errorf("axdr: scaler-unit must be a structure")
	}
	fields, ok := d.Value.([]Data)
	if !ok || len(fields) != 2 {
		return ScalerUnit{}, fmt.Errorf("axdr: scaler-unit structure must have 2 fields")
	}
	scaler, ok := fields[0].Value.(int8)
	if !ok {
		return ScalerUnit{}, fmt.Errorf("axdr: scaler-unit scaler must be an Integer")
	}
	unit, ok := fields[1].Value.(uint8)
	if !ok {
		return ScalerUnit{}, fmt.Errorf("axdr: scaler-unit unit must be an Enum")
	}
	return ScalerUnit{Scaler: scaler, Unit: Unit(unit)}, nil
}
