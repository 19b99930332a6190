package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceName(t *testing.T) {
	require.Equal(t, "projects/imob/topics/crm-lead-events", resourceName("imob", "topics", " crm-lead-events "))
	require.Equal(t, "projects/other/subscriptions/s", resourceName("imob", "subscriptions", "projects/other/subscriptions/s"))
	require.Equal(t, "projects/imob/subscriptions/projects/other/topics/t", resourceName("imob", "subscriptions", "projects/other/topics/t"))
	require.Empty(t, resourceName("imob", "topics", ""))
	require.Empty(t, resourceName("", "topics", "t"))
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("t"))
	require.Nil(t, c.Subscriber("s"))
	require.NoError(t, c.Close())
	require.Error(t, c.Ping(context.Background()))
}
