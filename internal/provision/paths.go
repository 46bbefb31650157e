// Package provision reconciles signing certificates and provisioning
// profiles between App Store Connect and the artifact store: certificates
// are packaged as encrypted PKCS#12 archives, profiles are stored as
// plaintext mobileprovision payloads, both under deterministic paths.
package provision

import (
	"fmt"
	"strings"

	"github.com/dmitrop/storeflight/internal/asc"
)

func certificatePath(platform asc.Platform, t asc.CertificateType, certID string) string {
	return fmt.Sprintf("certificates/%s/%s/%s.p12",
		strings.ToLower(string(platform)), strings.ToLower(string(t)), certID)
}

func profilePath(platform asc.Platform, t asc.ProfileType, bundleID string) string {
	return fmt.Sprintf("profiles/%s/%s/%s.mobileprovision",
		strings.ToLower(string(platform)), strings.ToLower(string(t)), bundleID)
}

// profileName is the deterministic API-side name for a managed profile.
// Force regeneration finds the previous profile by this name.
func profileName(t asc.ProfileType, bundleID string) string {
	return fmt.Sprintf("storeflight %s %s", strings.ToLower(string(t)), bundleID)
}
