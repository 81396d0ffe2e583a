package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFilledFraction(t *testing.T) {
	fill := FillResult{FilledSize: decimal.RequireFromString("99.5")}

	frac := fill.FilledFraction(decimal.NewFromInt(100))
	assert.True(t, frac.Equal(decimal.RequireFromString("0.995")))

	assert.True(t, fill.FilledFraction(decimal.Zero).IsZero())
	assert.True(t, fill.FilledFraction(decimal.NewFromInt(-5)).IsZero())
}

func TestParseFillStatusDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, FillFilled, ParseFillStatus("filled"))
	assert.Equal(t, FillRejected, ParseFillStatus("rejected"))
	assert.Equal(t, FillUnknown, ParseFillStatus("settling"))
	assert.Equal(t, FillUnknown, ParseFillStatus(""))
}
