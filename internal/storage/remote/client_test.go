package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeRejectsEmptyUserID(t *testing.T) {
	// An unscoped purge would issue an empty query expression, which the
	// server rejects. The guard must fire before any RPC is attempted.
	client := &Client{collectionName: "chunks", vectorDim: 1536}

	result, err := client.Purge(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user id")
	assert.Nil(t, result)
}
