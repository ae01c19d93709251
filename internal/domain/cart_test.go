package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTotalsRoundsToCents(t *testing.T) {
	n, sum := Totals([]LineItem{
		{ProductID: "a", Price: 0.1, Quantity: 3},
		{ProductID: "b", Price: 19.99, Quantity: 1},
	})
	assert.Equal(t, 4, n)
	assert.Equal(t, 20.29, sum)

	n, sum = Totals(nil)
	assert.Zero(t, n)
	assert.Zero(t, sum)
}

func TestSameLine(t *testing.T) {
	a := LineItem{ProductID: "p", Size: "M", Color: "red"}
	assert.True(t, a.SameLine(LineItem{ProductID: "p", Size: "M", Color: "red", Quantity: 9}))
	assert.False(t, a.SameLine(LineItem{ProductID: "p", Size: "L", Color: "red"}))
}
