package server

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = memory.DSN
	return c
}

func TestNewStack_Memory(t *testing.T) {
	st, err := NewStack(context.Background(), memoryConfig(), logging.Nop{})
	require.NoError(t, err)
	defer st.Close()

	assert.IsType(t, &memory.RepositoryManager{}, st.Repos)

	_, err = st.Auth.CreateUser(context.Background(), "root@example.com", "pw", models.RoleSuperAdmin)
	require.NoError(t, err)
	res, err := st.Auth.Login(context.Background(), "root@example.com", "pw")
	require.NoError(t, err)

	claims, err := st.Issuer.Verify(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperAdmin, claims.Role)

	report := st.Cleanup.Sweep(context.Background())
	assert.False(t, report.Failed())
}

func TestNewStack_InvalidConfig(t *testing.T) {
	c := memoryConfig()
	c.SecretKey = "short"
	_, err := NewStack(context.Background(), c, logging.Nop{})
	assert.Error(t, err)
}
