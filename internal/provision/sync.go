package provision

import (
	"context"
	"fmt"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/logging"
)

// Request describes one provisioning sync batch: one certificate shared by
// all bundle ids, then one profile per bundle id.
type Request struct {
	Platform    asc.Platform
	ProfileType asc.ProfileType
	BundleIDs   []string
	// Passphrase protects the PKCS#12 archive and its encryption envelope.
	Passphrase []byte
	// Force skips reuse and recreates both certificate and profiles.
	Force bool
	// Push pushes every commit to the store remote.
	Push bool
}

// Syncer coordinates certificate and profile reconciliation.
type Syncer struct {
	certs    *CertificateManager
	profiles *ProfileSyncer
	log      logging.Logger
}

func NewSyncer(certs *CertificateManager, profiles *ProfileSyncer, log logging.Logger) *Syncer {
	return &Syncer{certs: certs, profiles: profiles, log: log}
}

// Sync ensures a certificate for the batch, then ensures a profile per
// bundle id in caller order. The first failure halts the batch.
func (s *Syncer) Sync(ctx context.Context, req Request) error {
	if len(req.BundleIDs) == 0 {
		return fmt.Errorf("sync: no bundle ids given")
	}

	certType := req.ProfileType.CertificateType()
	certID, err := s.certs.EnsureCertificate(ctx, certType, req.Platform, req.Passphrase, req.Force, req.Push)
	if err != nil {
		return err
	}

	for _, bundleID := range req.BundleIDs {
		if err := s.profiles.EnsureProfile(ctx, bundleID, req.ProfileType, req.Platform, []string{certID}, req.Force, req.Push); err != nil {
			return err
		}
	}

	s.log.Info(ctx, "provisioning sync complete", "type", req.ProfileType, "bundles", len(req.BundleIDs))
	return nil
}
