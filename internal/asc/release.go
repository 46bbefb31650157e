package asc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// GetAppID resolves a bundle identifier to the owning app's resource id.
// Returns "" when no app with that bundle id is visible to the key.
func (c *Client) GetAppID(ctx context.Context, bundleID string) (string, error) {
	path := "/apps?filter[bundleId]=" + url.QueryEscape(bundleID)

	data, err := c.getList(ctx, path)
	if err != nil {
		return "", err
	}

	for _, d := range data {
		var attrs struct {
			BundleID string `json:"bundleId"`
		}
		if len(d.Attributes) > 0 {
			if err := json.Unmarshal(d.Attributes, &attrs); err != nil {
				continue
			}
		}
		if attrs.BundleID == bundleID {
			return d.ID, nil
		}
	}
	return "", nil
}

// SetBetaGroups assigns the build to the named beta groups of the app.
// Group names that do not exist fail the call; groups are never created
// here.
func (c *Client) SetBetaGroups(ctx context.Context, appID, buildID string, groupNames []string) error {
	if len(groupNames) == 0 {
		return nil
	}

	data, err := c.getList(ctx, "/apps/"+url.PathEscape(appID)+"/betaGroups")
	if err != nil {
		return err
	}

	byName := make(map[string]string, len(data))
	for _, d := range data {
		var attrs struct {
			Name string `json:"name"`
		}
		if len(d.Attributes) > 0 {
			if err := json.Unmarshal(d.Attributes, &attrs); err != nil {
				continue
			}
		}
		byName[attrs.Name] = d.ID
	}

	for _, name := range groupNames {
		groupID, ok := byName[name]
		if !ok {
			return fmt.Errorf("beta group %q: %w", name, ErrNotFound)
		}

		body := linkageDocument{Data: []relationshipRef{{Type: "builds", ID: buildID}}}
		path := "/betaGroups/" + url.PathEscape(groupID) + "/relationships/builds"
		if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
			return fmt.Errorf("assign beta group %q: %w", name, err)
		}
	}
	return nil
}

// SetChangelog writes the "what to test" text onto the build's beta
// localizations. When the build has none yet, an en-US localization is
// created.
func (c *Client) SetChangelog(ctx context.Context, buildID, changelog string, localizationIDs []string) error {
	type localizationAttributes struct {
		WhatsNew string `json:"whatsNew"`
		Locale   string `json:"locale,omitempty"`
	}

	if len(localizationIDs) == 0 {
		type createRequest struct {
			Data struct {
				Type          string                 `json:"type"`
				Attributes    localizationAttributes `json:"attributes"`
				Relationships struct {
					Build relationshipOne `json:"build"`
				} `json:"relationships"`
			} `json:"data"`
		}

		var req createRequest
		req.Data.Type = "betaBuildLocalizations"
		req.Data.Attributes = localizationAttributes{WhatsNew: changelog, Locale: "en-US"}
		req.Data.Relationships.Build = relationshipOne{Data: relationshipRef{Type: "builds", ID: buildID}}

		return c.do(ctx, http.MethodPost, "/betaBuildLocalizations", req, nil)
	}

	for _, id := range localizationIDs {
		type patchRequest struct {
			Data struct {
				Type       string                 `json:"type"`
				ID         string                 `json:"id"`
				Attributes localizationAttributes `json:"attributes"`
			} `json:"data"`
		}

		var req patchRequest
		req.Data.Type = "betaBuildLocalizations"
		req.Data.ID = id
		req.Data.Attributes = localizationAttributes{WhatsNew: changelog}

		if err := c.do(ctx, http.MethodPatch, "/betaBuildLocalizations/"+url.PathEscape(id), req, nil); err != nil {
			return fmt.Errorf("set changelog for localization %s: %w", id, err)
		}
	}
	return nil
}

// SendToReview submits the build for beta app review.
func (c *Client) SendToReview(ctx context.Context, buildID string) error {
	type submitRequest struct {
		Data struct {
			Type          string `json:"type"`
			Relationships struct {
				Build relationshipOne `json:"build"`
			} `json:"relationships"`
		} `json:"data"`
	}

	var req submitRequest
	req.Data.Type = "betaAppReviewSubmissions"
	req.Data.Relationships.Build = relationshipOne{Data: relationshipRef{Type: "builds", ID: buildID}}

	return c.do(ctx, http.MethodPost, "/betaAppReviewSubmissions", req, nil)
}
