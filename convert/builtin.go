package convert

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// registerBuiltins installs the pairs every registry ships with.
func registerBuiltins(r *Registry) {
	registerBuiltin(r, timeToWire, timeFromWire)
	registerBuiltin(r, durationToWire, time.ParseDuration)
	registerBuiltin(r, uuidToWire, uuid.Parse)
	registerBuiltin(r, decimalToWire, decimalFromWire)
	registerBuiltinFrom(r, decimalFromNumber)
	registerBuiltin(r, bytesToWire, base64.StdEncoding.DecodeString)
}

// Instants travel as RFC 3339 strings in UTC with nanosecond precision.
func timeToWire(t time.Time) (string, error) {
	return t.UTC().Format(time.RFC3339Nano), nil
}

func timeFromWire(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func durationToWire(d time.Duration) (string, error) {
	return d.String(), nil
}

func uuidToWire(id uuid.UUID) (string, error) {
	return id.String(), nil
}

func decimalToWire(d decimal.Decimal) (float64, error) {
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, errors.Wrapf(ErrConversion, "decimal %s is out of float64 range", d.String())
	}
	return f, nil
}

func decimalFromWire(f float64) (decimal.Decimal, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Decimal{}, errors.Wrapf(ErrConversion, "%v is not a decimal", f)
	}
	return decimal.NewFromFloat(f), nil
}

// decimalFromNumber keeps the digits of a JSON number instead of going through float64.
func decimalFromNumber(n json.Number) (decimal.Decimal, error) {
	return decimal.NewFromString(string(n))
}

func bytesToWire(b []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(b), nil
}
