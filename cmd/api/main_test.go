package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mindsync/backend/internal/config"
)

func TestOpenStoresWithoutMongo(t *testing.T) {
	st, err := openStores(context.Background(), config.MongoConfig{Database: "mindsync"})
	require.NoError(t, err)

	assert.NotNil(t, st.users)
	assert.NotNil(t, st.sessions)
	assert.NotNil(t, st.emotions)
	assert.Nil(t, st.health)
	assert.NoError(t, st.close(context.Background()))
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"},
		splitOrigins(" http://localhost:3000, ,https://app.example.com "))
	assert.Nil(t, splitOrigins(""))
}
