package errors_test

import (
	"testing"

	apperrors "github.com/jrsteele09/go-oauth-login/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, apperrors.Wrapf(nil, "exchange %s", "code"))
	})

	t.Run("keeps chain", func(t *testing.T) {
		err := apperrors.Wrapf(apperrors.ErrProviderError, "exchange %s", "code")
		require.EqualError(t, err, "exchange code: identity provider error")
		require.True(t, apperrors.Is(err, apperrors.ErrProviderError))
		require.False(t, apperrors.Is(err, apperrors.ErrAuthDenied))
	})
}
