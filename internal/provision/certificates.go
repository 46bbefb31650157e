package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/cryptox"
	"github.com/dmitrop/storeflight/internal/logging"
	"github.com/dmitrop/storeflight/internal/store"
)

// CertificateManager ensures a usable signing certificate exists both in
// App Store Connect and as an encrypted archive in the artifact store.
type CertificateManager struct {
	certs asc.CertificateService
	store store.ArtifactStore
	log   logging.Logger
}

func NewCertificateManager(certs asc.CertificateService, st store.ArtifactStore, log logging.Logger) *CertificateManager {
	return &CertificateManager{certs: certs, store: st, log: log}
}

// FindValidCertificate returns the id of the first API-listed certificate
// of the requested type that also has an encrypted archive in the store,
// or "" when none qualifies. A certificate known to only one side does not
// count: the API listing proves it is still valid, the store blob proves
// the private key is recoverable.
func (m *CertificateManager) FindValidCertificate(ctx context.Context, t asc.CertificateType, platform asc.Platform) (string, error) {
	certs, err := m.certs.ListCertificates(ctx, t)
	if err != nil {
		return "", fmt.Errorf("list certificates: %w", err)
	}

	for _, cert := range certs {
		exists, err := m.store.FileExists(certificatePath(platform, t, cert.ID))
		if err != nil {
			return "", fmt.Errorf("check store for certificate %s: %w", cert.ID, err)
		}
		if exists {
			return cert.ID, nil
		}
	}
	return "", nil
}

// EnsureCertificate returns the id of a valid certificate of the requested
// type, creating one when necessary. With force the existing-certificate
// short-circuit is skipped and a new certificate is always created.
func (m *CertificateManager) EnsureCertificate(ctx context.Context, t asc.CertificateType, platform asc.Platform, passphrase []byte, force, push bool) (string, error) {
	if err := m.store.CloneOrPull(ctx); err != nil {
		return "", fmt.Errorf("refresh artifact store: %w", err)
	}

	if !force {
		id, err := m.FindValidCertificate(ctx, t, platform)
		if err != nil {
			return "", err
		}
		if id != "" {
			m.log.Info(ctx, "reusing certificate", "certificateId", id, "type", t)
			return id, nil
		}
	}

	commonName := fmt.Sprintf("storeflight %s", strings.ToLower(string(t)))
	key, csr, err := cryptox.GenerateKeyAndCSR(commonName)
	if err != nil {
		return "", fmt.Errorf("generate csr: %w", err)
	}

	cert, err := m.certs.CreateCertificate(ctx, csr, t)
	if err != nil {
		return "", fmt.Errorf("create certificate: %w", err)
	}
	if len(cert.Content) == 0 {
		return "", fmt.Errorf("certificate %s created without content: %w", cert.ID, asc.ErrMissingData)
	}

	archive, err := cryptox.PackageP12(cert.Content, key, string(passphrase))
	if err != nil {
		return "", fmt.Errorf("package certificate %s: %w", cert.ID, err)
	}

	encrypted, err := cryptox.Encrypt(archive, passphrase)
	if err != nil {
		return "", fmt.Errorf("encrypt certificate %s: %w", cert.ID, err)
	}

	path := certificatePath(platform, t, cert.ID)
	if err := m.store.WriteFile(path, encrypted); err != nil {
		return "", fmt.Errorf("store certificate %s: %w", cert.ID, err)
	}
	message := fmt.Sprintf("add %s certificate %s", strings.ToLower(string(t)), cert.ID)
	if err := m.store.CommitAndPush(ctx, message, push); err != nil {
		return "", fmt.Errorf("commit certificate %s: %w", cert.ID, err)
	}

	m.log.Info(ctx, "created certificate", "certificateId", cert.ID, "type", t, "path", path)
	return cert.ID, nil
}
