package lavalink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutePlannerStatus(t *testing.T) {
	fake := newFakeNode(t)
	fake.routeStatus = `{
		"class": "RotatingIpRoutePlanner",
		"details": {
			"ipBlock": {"type": "Inet6Address", "size": "1208925819614629174706176"},
			"failingAddresses": [
				{"failingAddress": "/1.0.0.0", "failingTimestamp": 1573520707545, "failingTime": "Mon Nov 11 20:05:07 EST 2019"}
			],
			"blockIndex": "0",
			"currentAddressIndex": "36792023813"
		}
	}`
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	stats, err := node.RoutePlannerStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, RouteRotateOnBan, stats.Class)
	assert.Equal(t, RouteIPv6, stats.Details.IPBlock.Type)
	require.Len(t, stats.Details.FailingAddresses, 1)
	assert.Equal(t, "/1.0.0.0", stats.Details.FailingAddresses[0].Address)
}

func TestRoutePlannerStatusAbsent(t *testing.T) {
	fake := newFakeNode(t)
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	stats, err := node.RoutePlannerStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stats, "a node without a route planner reports no status")
}

func TestRoutePlannerFreePaths(t *testing.T) {
	fake := newFakeNode(t)
	pool := NewPool("user-123")
	node, err := pool.CreateNode(context.Background(), fake.config("main"))
	require.NoError(t, err)
	defer node.Disconnect(context.Background())

	before := len(fake.recorded())

	require.NoError(t, node.FreeRouteAddress(context.Background(), "1.0.0.1"))
	require.NoError(t, node.FreeAllRouteAddresses(context.Background()))

	recorded := fake.recorded()[before:]
	require.Len(t, recorded, 2)
	assert.Equal(t, "POST /v4/routeplanner/free/address", recorded[0])
	assert.Equal(t, "POST /v4/routeplanner/free/address/all", recorded[1])
}
