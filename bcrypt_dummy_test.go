package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherDummyCost(t *testing.T) {
	tests := []struct {
		name string
		cost int
		want int
	}{
		{name: "low cost uses build default", cost: bcrypt.MinCost, want: passwordHashCost()},
		{name: "out of range uses build default", cost: 99, want: passwordHashCost()},
		{name: "higher cost is kept", cost: passwordHashCost() + 1, want: passwordHashCost() + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasher := NewBcryptHasher(tt.cost)

			got, err := bcrypt.Cost(hasher.dummy)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
