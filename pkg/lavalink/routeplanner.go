package lavalink

import (
	"context"
	"encoding/json"
	"net/http"
)

// RoutePlannerStatus fetches the node's route planner state. Returns
// (nil, nil) when no route planner is configured on the node.
func (n *Node) RoutePlannerStatus(ctx context.Context) (*RouteStats, error) {
	raw, err := n.request(ctx, http.MethodGet, n.protocolNow().basePath()+"/routeplanner/status", nil, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var stats RouteStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, err
	}
	if stats.Class == "" {
		return nil, nil
	}
	return &stats, nil
}

// FreeRouteAddress unmarks a single banned address on the route planner.
func (n *Node) FreeRouteAddress(ctx context.Context, address string) error {
	body := map[string]any{"address": address}
	_, err := n.request(ctx, http.MethodPost, n.protocolNow().basePath()+"/routeplanner/free/address", nil, body)
	return err
}

// FreeAllRouteAddresses unmarks every banned address on the route planner.
func (n *Node) FreeAllRouteAddresses(ctx context.Context) error {
	_, err := n.request(ctx, http.MethodPost, n.protocolNow().basePath()+"/routeplanner/free/address/all", nil, nil)
	return err
}
