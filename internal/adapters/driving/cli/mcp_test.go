package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPServeCmd_Flags(t *testing.T) {
	flag := mcpServeCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "p", flag.Shorthand)
	assert.Equal(t, "0", flag.DefValue)

	flag = mcpServeCmd.Flags().Lookup("read-only")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestMCPServeCmd_RequiresRetrieval(t *testing.T) {
	setupTestServices(t)
	retrievalService = nil

	err := runMCPServe(mcpServeCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval")
}
