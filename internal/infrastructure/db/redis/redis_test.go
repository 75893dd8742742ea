package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnect_UnreachableNamesAddress(t *testing.T) {
	client, err := Connect(context.Background(), Config{
		Addr:    "127.0.0.1:1",
		Timeout: 100 * time.Millisecond,
	})
	require.Nil(t, client)
	require.ErrorContains(t, err, "redis ping 127.0.0.1:1")
}
