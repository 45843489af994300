package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyPassword(t *testing.T) {
	salt := []byte("fixed-salt-fixed-salt-fixed-salt")
	verifier := DerivePasswordVerifier([]byte("correct horse"), salt)

	require.True(t, VerifyPassword([]byte("correct horse"), salt, verifier))
	require.False(t, VerifyPassword([]byte("wrong password"), salt, verifier))
}

func TestDerivePasswordVerifier_Deterministic(t *testing.T) {
	salt := []byte("fixed-salt-fixed-salt-fixed-salt")
	a := DerivePasswordVerifier([]byte("pw"), salt)
	b := DerivePasswordVerifier([]byte("pw"), salt)
	require.Equal(t, a, b)
}
