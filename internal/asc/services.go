package asc

import "context"

// The workflow packages depend on these interfaces rather than on Client so
// tests can substitute fakes.

// UploadService drives chunked build uploads.
type UploadService interface {
	CreateBuildUpload(ctx context.Context, appID, version, buildNumber string, platform Platform, fd FileDescriptor) (*UploadPlan, error)
	MarkUploadComplete(ctx context.Context, uploadFileID string, checksums *Checksums) error
	GetUploadStatus(ctx context.Context, uploadID string) (*UploadStatus, error)
}

// BuildService answers build queries during processing polls.
//
// Contract:
//   - FindBuildID returns "" (not an error) while the build has not
//     appeared yet, and only returns an id whose build number matches the
//     request exactly.
//   - GetProcessingResult populates bundle/localization ids only for VALID.
type BuildService interface {
	FindBuildID(ctx context.Context, appID, version, buildNumber string) (string, error)
	GetProcessingResult(ctx context.Context, buildID string) (*ProcessingResult, error)
}

// CertificateService manages signing certificates.
type CertificateService interface {
	ListCertificates(ctx context.Context, t CertificateType) ([]Certificate, error)
	CreateCertificate(ctx context.Context, csr []byte, t CertificateType) (*Certificate, error)
	DeleteCertificate(ctx context.Context, id string) error
}

// ProfileService manages provisioning profiles. Profiles cannot be updated
// in place; regeneration is delete-then-create.
type ProfileService interface {
	ListProfiles(ctx context.Context, name string) ([]Profile, error)
	CreateProfile(ctx context.Context, name string, t ProfileType, bundleResourceID string, certificateIDs, deviceIDs []string) (*Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

// DeviceService lists and registers test devices.
type DeviceService interface {
	ListDevices(ctx context.Context, platform Platform, status DeviceStatus) ([]Device, error)
	RegisterDevice(ctx context.Context, name, udid string, platform Platform) (*Device, error)
}

// BundleIDService resolves bundle identifiers to their API resource ids.
// GetBundleResourceID returns "" when the identifier is not registered.
type BundleIDService interface {
	GetBundleResourceID(ctx context.Context, identifier string) (string, error)
}

// ReleaseService covers post-processing distribution steps.
type ReleaseService interface {
	GetAppID(ctx context.Context, bundleID string) (string, error)
	SetBetaGroups(ctx context.Context, appID, buildID string, groupNames []string) error
	SetChangelog(ctx context.Context, buildID, changelog string, localizationIDs []string) error
	SendToReview(ctx context.Context, buildID string) error
}

var (
	_ UploadService      = (*Client)(nil)
	_ BuildService       = (*Client)(nil)
	_ CertificateService = (*Client)(nil)
	_ ProfileService     = (*Client)(nil)
	_ DeviceService      = (*Client)(nil)
	_ BundleIDService    = (*Client)(nil)
	_ ReleaseService     = (*Client)(nil)
)
