package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Consensus.DataDir = t.TempDir()
	cfg.Storage.DataDir = t.TempDir()
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateExtended())
}

func TestValidateRejectsMismatchedLabelCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Consensus.DataDir = t.TempDir()
	cfg.Storage.DataDir = t.TempDir()
	cfg.ActorPool.Labels = []string{"main"}
	cfg.ActorPool.NumProcess = 2

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateExtendedRejectsUnknownAutoRecover(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ActorPool.AutoRecover = "bogus"

	err := cfg.ValidateExtended()
	require.Error(t, err)
	var ve ValidationErrors
	require.ErrorAs(t, err, &ve)
	require.NotEmpty(t, ve)
}

func TestValidateExtendedRejectsUnknownShuffleFetchType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analyzer.ShuffleFetchType = "by_whatever"

	err := cfg.ValidateExtended()
	require.Error(t, err)
}
