// Package asc is a client for the App Store Connect REST API, covering the
// resources the delivery and provisioning workflows need: build uploads,
// builds, certificates, profiles, devices, bundle ids and TestFlight
// distribution. Consumers depend on the narrow service interfaces declared
// in services.go; Client implements all of them.
package asc

import "time"

// Platform is an App Store Connect platform identifier.
type Platform string

const (
	PlatformIOS   Platform = "IOS"
	PlatformMacOS Platform = "MAC_OS"
	PlatformTVOS  Platform = "TV_OS"
)

// CertificateType distinguishes development from distribution certificates.
type CertificateType string

const (
	CertificateTypeDevelopment  CertificateType = "DEVELOPMENT"
	CertificateTypeDistribution CertificateType = "DISTRIBUTION"
)

// ProfileType identifies a provisioning profile kind.
type ProfileType string

const (
	ProfileTypeIOSDevelopment ProfileType = "IOS_APP_DEVELOPMENT"
	ProfileTypeIOSAdHoc       ProfileType = "IOS_APP_ADHOC"
	ProfileTypeIOSAppStore    ProfileType = "IOS_APP_STORE"
	ProfileTypeMacDevelopment ProfileType = "MAC_APP_DEVELOPMENT"
	ProfileTypeMacAppStore    ProfileType = "MAC_APP_STORE"
	ProfileTypeTVOSAppStore   ProfileType = "TVOS_APP_STORE"
)

// RequiresDevices reports whether profiles of this type must carry a fixed
// device list. Development and ad-hoc profiles do; store/distribution
// profiles do not.
func (t ProfileType) RequiresDevices() bool {
	switch t {
	case ProfileTypeIOSDevelopment, ProfileTypeIOSAdHoc, ProfileTypeMacDevelopment:
		return true
	}
	return false
}

// CertificateType returns the certificate type profiles of this type are
// signed with.
func (t ProfileType) CertificateType() CertificateType {
	switch t {
	case ProfileTypeIOSDevelopment, ProfileTypeMacDevelopment:
		return CertificateTypeDevelopment
	}
	return CertificateTypeDistribution
}

// UploadPhase is the server-side phase of a build upload.
type UploadPhase string

const (
	UploadPhaseAwaitingUpload UploadPhase = "AWAITING_UPLOAD"
	UploadPhaseProcessing     UploadPhase = "PROCESSING"
	UploadPhaseComplete       UploadPhase = "COMPLETE"
	UploadPhaseFailed         UploadPhase = "FAILED"
)

// UploadOperation describes one byte range of the binary and the pre-signed
// request the server expects it to arrive on. The set of operations returned
// for a file tiles [0, fileSize) exactly; this client assumes that invariant
// from the server response.
type UploadOperation struct {
	Method     string
	URL        string
	Length     int64
	Offset     int64
	Headers    map[string]string
	Expiration *time.Time
	PartNumber *int64
	EntityTag  *string
}

// UploadStatus is the re-pollable state of a build upload.
type UploadStatus struct {
	Phase    UploadPhase
	Errors   []string
	Warnings []string
}

// UploadPlan is the server's answer to a create-build-upload request:
// identifiers for the upload session and file, the chunk operations, and
// the initial status.
type UploadPlan struct {
	UploadID     string
	UploadFileID string
	Operations   []UploadOperation
	Status       UploadStatus
}

// FileDescriptor describes the binary to be uploaded.
type FileDescriptor struct {
	Name      string
	Size      int64
	AssetType string
	UTI       string
}

// Checksums carries whole-file checksums attached to the completion
// notification.
type Checksums struct {
	SHA256 string
	MD5    string
}

// ProcessingState is the build-level processing state, distinct from the
// upload-level phase.
type ProcessingState string

const (
	ProcessingStateProcessing              ProcessingState = "PROCESSING"
	ProcessingStateFailed                  ProcessingState = "FAILED"
	ProcessingStateInvalid                 ProcessingState = "INVALID"
	ProcessingStateValid                   ProcessingState = "VALID"
	ProcessingStateMissingExportCompliance ProcessingState = "MISSING_EXPORT_COMPLIANCE"
	ProcessingStateRejected                ProcessingState = "REJECTED"
)

// ProcessingResult is one polling cycle's view of a processed build.
// BuildBundleID and BuildLocalizationIDs are populated only for VALID.
type ProcessingResult struct {
	State                ProcessingState
	BuildBundleID        string
	BuildLocalizationIDs []string
}

// Certificate is a signing certificate. Content (DER) is returned by the
// API only on creation.
type Certificate struct {
	ID           string
	Name         string
	Type         CertificateType
	Content      []byte
	SerialNumber string
}

// Profile is a provisioning profile. Content is the raw mobileprovision
// payload.
type Profile struct {
	ID             string
	Name           string
	Type           ProfileType
	Content        []byte
	ExpirationDate *time.Time
}

// DeviceStatus is the registration state of a device.
type DeviceStatus string

const (
	DeviceStatusEnabled  DeviceStatus = "ENABLED"
	DeviceStatusDisabled DeviceStatus = "DISABLED"
)

// Device is a registered test device.
type Device struct {
	ID       string
	Name     string
	UDID     string
	Platform Platform
	Status   DeviceStatus
}
