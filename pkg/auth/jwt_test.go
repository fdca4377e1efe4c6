package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := v.Sign("u-1", RoleHost, "h@example.com", time.Minute)
	require.NoError(t, err)

	c, err := v.ParseValidate(tok)
	require.NoError(t, err)
	require.Equal(t, "u-1", c.Sub)
	require.Equal(t, RoleHost, c.Role)
	require.Equal(t, "h@example.com", c.Email)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tok, err := NewVerifier("a").Sign("u-1", RoleUser, "", time.Minute)
	require.NoError(t, err)
	_, err = NewVerifier("b").ParseValidate(tok)
	require.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := v.Sign("u-1", RoleUser, "", -time.Minute)
	require.NoError(t, err)
	_, err = v.ParseValidate(tok)
	require.Error(t, err)
}

func TestDefaultRoleIsUser(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := v.Sign("u-1", "", "", time.Minute)
	require.NoError(t, err)
	c, err := v.ParseValidate(tok)
	require.NoError(t, err)
	require.Equal(t, RoleUser, c.Role)
}
