package asc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

type deviceAttributes struct {
	Name     string       `json:"name,omitempty"`
	UDID     string       `json:"udid,omitempty"`
	Platform Platform     `json:"platform,omitempty"`
	Status   DeviceStatus `json:"status,omitempty"`
}

func decodeDevice(data resourceData) (Device, error) {
	var attrs deviceAttributes
	if len(data.Attributes) > 0 {
		if err := json.Unmarshal(data.Attributes, &attrs); err != nil {
			return Device{}, fmt.Errorf("decode device attributes: %w", err)
		}
	}
	return Device{
		ID:       data.ID,
		Name:     attrs.Name,
		UDID:     attrs.UDID,
		Platform: attrs.Platform,
		Status:   attrs.Status,
	}, nil
}

// ListDevices returns registered devices filtered by platform and/or status.
// Empty filter values are omitted.
func (c *Client) ListDevices(ctx context.Context, platform Platform, status DeviceStatus) ([]Device, error) {
	path := "/devices?limit=200"
	if platform != "" {
		path += "&filter[platform]=" + url.QueryEscape(string(platform))
	}
	if status != "" {
		path += "&filter[status]=" + url.QueryEscape(string(status))
	}

	data, err := c.getList(ctx, path)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(data))
	for _, d := range data {
		dev, err := decodeDevice(d)
		if err != nil {
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// RegisterDevice registers a new test device by UDID.
func (c *Client) RegisterDevice(ctx context.Context, name, udid string, platform Platform) (*Device, error) {
	type createRequest struct {
		Data struct {
			Type       string           `json:"type"`
			Attributes deviceAttributes `json:"attributes"`
		} `json:"data"`
	}

	var req createRequest
	req.Data.Type = "devices"
	req.Data.Attributes = deviceAttributes{Name: name, UDID: udid, Platform: platform}

	var doc singleDocument
	if err := c.do(ctx, http.MethodPost, "/devices", req, &doc); err != nil {
		return nil, err
	}

	dev, err := decodeDevice(doc.Data)
	if err != nil {
		return nil, err
	}
	return &dev, nil
}
