package asc

import (
	"context"
	"encoding/json"
	"net/url"
)

// GetBundleResourceID resolves a bundle identifier (e.g. "com.example.app")
// to its API resource id. It returns "" when the identifier is not
// registered; bundle ids are never created by this client.
//
// The identifier filter matches loosely server-side, so results are checked
// for an exact identifier match.
func (c *Client) GetBundleResourceID(ctx context.Context, identifier string) (string, error) {
	path := "/bundleIds?filter[identifier]=" + url.QueryEscape(identifier)

	data, err := c.getList(ctx, path)
	if err != nil {
		return "", err
	}

	for _, d := range data {
		var attrs struct {
			Identifier string `json:"identifier"`
		}
		if len(d.Attributes) > 0 {
			if err := json.Unmarshal(d.Attributes, &attrs); err != nil {
				continue
			}
		}
		if attrs.Identifier == identifier {
			return d.ID, nil
		}
	}
	return "", nil
}
