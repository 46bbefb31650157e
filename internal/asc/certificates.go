package asc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

type certificateAttributes struct {
	Name               string          `json:"name,omitempty"`
	CertificateType    CertificateType `json:"certificateType,omitempty"`
	CertificateContent string          `json:"certificateContent,omitempty"`
	SerialNumber       string          `json:"serialNumber,omitempty"`
	CsrContent         string          `json:"csrContent,omitempty"`
}

func decodeCertificate(data resourceData) (Certificate, error) {
	var attrs certificateAttributes
	if len(data.Attributes) > 0 {
		if err := json.Unmarshal(data.Attributes, &attrs); err != nil {
			return Certificate{}, fmt.Errorf("decode certificate attributes: %w", err)
		}
	}

	cert := Certificate{
		ID:           data.ID,
		Name:         attrs.Name,
		Type:         attrs.CertificateType,
		SerialNumber: attrs.SerialNumber,
	}
	if attrs.CertificateContent != "" {
		content, err := base64.StdEncoding.DecodeString(attrs.CertificateContent)
		if err != nil {
			return Certificate{}, fmt.Errorf("decode certificate content: %w", err)
		}
		cert.Content = content
	}
	return cert, nil
}

// ListCertificates returns certificates, optionally filtered by type.
func (c *Client) ListCertificates(ctx context.Context, t CertificateType) ([]Certificate, error) {
	path := "/certificates?limit=200"
	if t != "" {
		path += "&filter[certificateType]=" + url.QueryEscape(string(t))
	}

	data, err := c.getList(ctx, path)
	if err != nil {
		return nil, err
	}

	certs := make([]Certificate, 0, len(data))
	for _, d := range data {
		cert, err := decodeCertificate(d)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// CreateCertificate submits a PEM CSR and returns the issued certificate.
// This is the only time the API returns the certificate content.
func (c *Client) CreateCertificate(ctx context.Context, csr []byte, t CertificateType) (*Certificate, error) {
	type createRequest struct {
		Data struct {
			Type       string                `json:"type"`
			Attributes certificateAttributes `json:"attributes"`
		} `json:"data"`
	}

	var req createRequest
	req.Data.Type = "certificates"
	req.Data.Attributes.CertificateType = t
	req.Data.Attributes.CsrContent = string(csr)

	var doc singleDocument
	if err := c.do(ctx, http.MethodPost, "/certificates", req, &doc); err != nil {
		return nil, err
	}

	cert, err := decodeCertificate(doc.Data)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// DeleteCertificate revokes a certificate.
func (c *Client) DeleteCertificate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/certificates/"+url.PathEscape(id), nil, nil)
}
