package asc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

type buildAttributes struct {
	Version         string          `json:"version,omitempty"`
	ProcessingState ProcessingState `json:"processingState,omitempty"`
}

// FindBuildID looks up the build for (app, version, buildNumber). It
// returns "" while no such build exists. The reported version must equal
// the requested build number exactly; this guards against the API matching
// on a prefix or substring.
func (c *Client) FindBuildID(ctx context.Context, appID, version, buildNumber string) (string, error) {
	path := fmt.Sprintf("/builds?filter[app]=%s&filter[preReleaseVersion.version]=%s&filter[version]=%s&limit=5",
		url.QueryEscape(appID), url.QueryEscape(version), url.QueryEscape(buildNumber))

	data, err := c.getList(ctx, path)
	if err != nil {
		return "", err
	}

	for _, d := range data {
		var attrs buildAttributes
		if len(d.Attributes) > 0 {
			if err := json.Unmarshal(d.Attributes, &attrs); err != nil {
				return "", fmt.Errorf("decode build attributes: %w", err)
			}
		}
		if attrs.Version == buildNumber {
			return d.ID, nil
		}
	}
	return "", nil
}

// GetProcessingResult fetches the current processing state of a build.
// For a VALID build it also resolves the build bundle id and the beta
// build localization ids needed by later distribution steps.
func (c *Client) GetProcessingResult(ctx context.Context, buildID string) (*ProcessingResult, error) {
	var doc singleDocument
	if err := c.do(ctx, http.MethodGet, "/builds/"+url.PathEscape(buildID), nil, &doc); err != nil {
		return nil, err
	}

	var attrs buildAttributes
	if len(doc.Data.Attributes) > 0 {
		if err := json.Unmarshal(doc.Data.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("decode build attributes: %w", err)
		}
	}
	if attrs.ProcessingState == "" {
		return nil, fmt.Errorf("build %s processing state: %w", buildID, ErrMissingData)
	}

	result := &ProcessingResult{State: attrs.ProcessingState}
	if attrs.ProcessingState != ProcessingStateValid {
		return result, nil
	}

	bundles, err := c.getLinkage(ctx, "/builds/"+url.PathEscape(buildID)+"/relationships/buildBundles")
	if err != nil {
		return nil, err
	}
	if len(bundles) > 0 {
		result.BuildBundleID = bundles[0].ID
	}

	localizations, err := c.getLinkage(ctx, "/builds/"+url.PathEscape(buildID)+"/relationships/betaBuildLocalizations")
	if err != nil {
		return nil, err
	}
	for _, l := range localizations {
		result.BuildLocalizationIDs = append(result.BuildLocalizationIDs, l.ID)
	}

	return result, nil
}

func (c *Client) getLinkage(ctx context.Context, path string) ([]relationshipRef, error) {
	var doc linkageDocument
	if err := c.do(ctx, http.MethodGet, path, nil, &doc); err != nil {
		return nil, err
	}
	return doc.Data, nil
}
