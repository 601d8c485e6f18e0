//go:build linux

package bus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenExclusive_SecondOpenIsBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "i2c-7")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	first, err := openExclusive(path)
	require.NoError(t, err)

	_, err = openExclusive(path)
	require.ErrorIs(t, err, ErrBusy)

	require.NoError(t, first.Close())

	again, err := openExclusive(path)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestOpenExclusive_Missing(t *testing.T) {
	_, err := openExclusive(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrBusy)
}
