package apiclient

import (
	"context"
	"net/http"
)

// SyncOccupancy reports a derived occupancy snapshot for a cafe.
func (c *Client) SyncOccupancy(ctx context.Context, snapshot OccupancySnapshot) error {
	if snapshot.TableConfig == nil {
		snapshot.TableConfig = []TableEntry{}
	}
	if err := c.doJSON(ctx, http.MethodPost, "/occupancy/", "/occupancy/", snapshot, nil); err != nil {
		return err
	}
	// The list carries each cafe's occupancy level.
	c.invalidate(ctx, listCafesPath)
	return nil
}

func (c *Client) OccupancyHistory(ctx context.Context, cafeID string) ([]OccupancyPoint, error) {
	var points []OccupancyPoint
	path := "/occupancy/history/" + escape(cafeID)
	if err := c.doJSON(ctx, http.MethodGet, "/occupancy/history/{cafeId}", path, nil, &points); err != nil {
		return nil, err
	}
	return points, nil
}
