package asc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type uploadStateAttributes struct {
	State    UploadPhase   `json:"state"`
	Errors   []uploadIssue `json:"errors,omitempty"`
	Warnings []uploadIssue `json:"warnings,omitempty"`
}

type uploadIssue struct {
	Message string `json:"message"`
}

type uploadOperationPayload struct {
	Method         string `json:"method"`
	URL            string `json:"url"`
	Length         int64  `json:"length"`
	Offset         int64  `json:"offset"`
	RequestHeaders []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"requestHeaders"`
	Expiration *time.Time `json:"expiration,omitempty"`
	PartNumber *int64     `json:"partNumber,omitempty"`
	EntityTag  *string    `json:"entityTag,omitempty"`
}

func issueMessages(issues []uploadIssue) []string {
	if len(issues) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(issues))
	for _, i := range issues {
		msgs = append(msgs, i.Message)
	}
	return msgs
}

func decodeUploadStatus(raw json.RawMessage) (UploadStatus, error) {
	var attrs uploadStateAttributes
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &attrs); err != nil {
			return UploadStatus{}, fmt.Errorf("decode upload attributes: %w", err)
		}
	}
	return UploadStatus{
		Phase:    attrs.State,
		Errors:   issueMessages(attrs.Errors),
		Warnings: issueMessages(attrs.Warnings),
	}, nil
}

// CreateBuildUpload reserves a build upload for (app, version, buildNumber)
// and registers the binary, returning the chunk operations the server
// dictates for it.
func (c *Client) CreateBuildUpload(ctx context.Context, appID, version, buildNumber string, platform Platform, fd FileDescriptor) (*UploadPlan, error) {
	// reserve the upload session
	type uploadCreateRequest struct {
		Data struct {
			Type       string `json:"type"`
			Attributes struct {
				Version     string   `json:"cfBundleShortVersionString"`
				BuildNumber string   `json:"cfBundleVersion"`
				Platform    Platform `json:"platform"`
			} `json:"attributes"`
			Relationships struct {
				App relationshipOne `json:"app"`
			} `json:"relationships"`
		} `json:"data"`
	}

	var uploadReq uploadCreateRequest
	uploadReq.Data.Type = "buildUploads"
	uploadReq.Data.Attributes.Version = version
	uploadReq.Data.Attributes.BuildNumber = buildNumber
	uploadReq.Data.Attributes.Platform = platform
	uploadReq.Data.Relationships.App = relationshipOne{Data: relationshipRef{Type: "apps", ID: appID}}

	var uploadDoc singleDocument
	if err := c.do(ctx, http.MethodPost, "/buildUploads", uploadReq, &uploadDoc); err != nil {
		return nil, err
	}
	if uploadDoc.Data.ID == "" {
		return nil, fmt.Errorf("build upload id: %w", ErrMissingData)
	}

	status, err := decodeUploadStatus(uploadDoc.Data.Attributes)
	if err != nil {
		return nil, err
	}

	// register the file and receive the chunk operations
	type fileCreateRequest struct {
		Data struct {
			Type       string `json:"type"`
			Attributes struct {
				AssetType string `json:"assetType"`
				FileName  string `json:"fileName"`
				FileSize  int64  `json:"fileSize"`
				UTI       string `json:"uti"`
			} `json:"attributes"`
			Relationships struct {
				BuildUpload relationshipOne `json:"buildUpload"`
			} `json:"relationships"`
		} `json:"data"`
	}

	var fileReq fileCreateRequest
	fileReq.Data.Type = "buildUploadFiles"
	fileReq.Data.Attributes.AssetType = fd.AssetType
	fileReq.Data.Attributes.FileName = fd.Name
	fileReq.Data.Attributes.FileSize = fd.Size
	fileReq.Data.Attributes.UTI = fd.UTI
	fileReq.Data.Relationships.BuildUpload = relationshipOne{Data: relationshipRef{Type: "buildUploads", ID: uploadDoc.Data.ID}}

	var fileDoc singleDocument
	if err := c.do(ctx, http.MethodPost, "/buildUploadFiles", fileReq, &fileDoc); err != nil {
		return nil, err
	}
	if fileDoc.Data.ID == "" {
		return nil, fmt.Errorf("build upload file id: %w", ErrMissingData)
	}

	var fileAttrs struct {
		UploadOperations []uploadOperationPayload `json:"uploadOperations"`
	}
	if len(fileDoc.Data.Attributes) > 0 {
		if err := json.Unmarshal(fileDoc.Data.Attributes, &fileAttrs); err != nil {
			return nil, fmt.Errorf("decode upload operations: %w", err)
		}
	}

	operations := make([]UploadOperation, 0, len(fileAttrs.UploadOperations))
	for _, op := range fileAttrs.UploadOperations {
		headers := make(map[string]string, len(op.RequestHeaders))
		for _, h := range op.RequestHeaders {
			headers[h.Name] = h.Value
		}
		operations = append(operations, UploadOperation{
			Method:     op.Method,
			URL:        op.URL,
			Length:     op.Length,
			Offset:     op.Offset,
			Headers:    headers,
			Expiration: op.Expiration,
			PartNumber: op.PartNumber,
			EntityTag:  op.EntityTag,
		})
	}

	return &UploadPlan{
		UploadID:     uploadDoc.Data.ID,
		UploadFileID: fileDoc.Data.ID,
		Operations:   operations,
		Status:       status,
	}, nil
}

// MarkUploadComplete tells the server all chunks have been delivered,
// optionally attaching whole-file checksums.
func (c *Client) MarkUploadComplete(ctx context.Context, uploadFileID string, checksums *Checksums) error {
	type fileChecksums struct {
		SHA256 string `json:"sha256,omitempty"`
		MD5    string `json:"md5,omitempty"`
	}
	type patchRequest struct {
		Data struct {
			Type       string `json:"type"`
			ID         string `json:"id"`
			Attributes struct {
				Uploaded            bool           `json:"uploaded"`
				SourceFileChecksums *fileChecksums `json:"sourceFileChecksums,omitempty"`
			} `json:"attributes"`
		} `json:"data"`
	}

	var req patchRequest
	req.Data.Type = "buildUploadFiles"
	req.Data.ID = uploadFileID
	req.Data.Attributes.Uploaded = true
	if checksums != nil {
		req.Data.Attributes.SourceFileChecksums = &fileChecksums{SHA256: checksums.SHA256, MD5: checksums.MD5}
	}

	return c.do(ctx, http.MethodPatch, "/buildUploadFiles/"+url.PathEscape(uploadFileID), req, nil)
}

// GetUploadStatus re-polls the phase of a build upload.
func (c *Client) GetUploadStatus(ctx context.Context, uploadID string) (*UploadStatus, error) {
	var doc singleDocument
	if err := c.do(ctx, http.MethodGet, "/buildUploads/"+url.PathEscape(uploadID), nil, &doc); err != nil {
		return nil, err
	}

	status, err := decodeUploadStatus(doc.Data.Attributes)
	if err != nil {
		return nil, err
	}
	if status.Phase == "" {
		return nil, fmt.Errorf("upload %s state: %w", uploadID, ErrMissingData)
	}
	return &status, nil
}
