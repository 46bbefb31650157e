package asc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type profileAttributes struct {
	Name           string      `json:"name,omitempty"`
	ProfileType    ProfileType `json:"profileType,omitempty"`
	ProfileContent string      `json:"profileContent,omitempty"`
	ExpirationDate *time.Time  `json:"expirationDate,omitempty"`
}

func decodeProfile(data resourceData) (Profile, error) {
	var attrs profileAttributes
	if len(data.Attributes) > 0 {
		if err := json.Unmarshal(data.Attributes, &attrs); err != nil {
			return Profile{}, fmt.Errorf("decode profile attributes: %w", err)
		}
	}

	profile := Profile{
		ID:             data.ID,
		Name:           attrs.Name,
		Type:           attrs.ProfileType,
		ExpirationDate: attrs.ExpirationDate,
	}
	if attrs.ProfileContent != "" {
		content, err := base64.StdEncoding.DecodeString(attrs.ProfileContent)
		if err != nil {
			return Profile{}, fmt.Errorf("decode profile content: %w", err)
		}
		profile.Content = content
	}
	return profile, nil
}

// ListProfiles returns profiles, optionally filtered by exact name.
func (c *Client) ListProfiles(ctx context.Context, name string) ([]Profile, error) {
	path := "/profiles?limit=200"
	if name != "" {
		path += "&filter[name]=" + url.QueryEscape(name)
	}

	data, err := c.getList(ctx, path)
	if err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(data))
	for _, d := range data {
		p, err := decodeProfile(d)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// CreateProfile creates a provisioning profile bound to a bundle id
// resource, a set of certificates and, for device-limited profile types,
// a set of devices.
func (c *Client) CreateProfile(ctx context.Context, name string, t ProfileType, bundleResourceID string, certificateIDs, deviceIDs []string) (*Profile, error) {
	type createRelationships struct {
		BundleID     relationshipOne   `json:"bundleId"`
		Certificates relationshipMany  `json:"certificates"`
		Devices      *relationshipMany `json:"devices,omitempty"`
	}
	type createRequest struct {
		Data struct {
			Type          string              `json:"type"`
			Attributes    profileAttributes   `json:"attributes"`
			Relationships createRelationships `json:"relationships"`
		} `json:"data"`
	}

	var req createRequest
	req.Data.Type = "profiles"
	req.Data.Attributes.Name = name
	req.Data.Attributes.ProfileType = t
	req.Data.Relationships.BundleID = relationshipOne{Data: relationshipRef{Type: "bundleIds", ID: bundleResourceID}}

	certRefs := make([]relationshipRef, 0, len(certificateIDs))
	for _, id := range certificateIDs {
		certRefs = append(certRefs, relationshipRef{Type: "certificates", ID: id})
	}
	req.Data.Relationships.Certificates = relationshipMany{Data: certRefs}

	if len(deviceIDs) > 0 {
		deviceRefs := make([]relationshipRef, 0, len(deviceIDs))
		for _, id := range deviceIDs {
			deviceRefs = append(deviceRefs, relationshipRef{Type: "devices", ID: id})
		}
		req.Data.Relationships.Devices = &relationshipMany{Data: deviceRefs}
	}

	var doc singleDocument
	if err := c.do(ctx, http.MethodPost, "/profiles", req, &doc); err != nil {
		return nil, err
	}

	profile, err := decodeProfile(doc.Data)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// DeleteProfile deletes a profile. Profiles cannot be updated in place, so
// regeneration always goes through here first.
func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/profiles/"+url.PathEscape(id), nil, nil)
}
