package cryptox

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"
)

// PackageP12 bundles a DER-encoded certificate together with its private key
// into a passphrase-protected PKCS#12 archive. The certificate must have
// been issued for the given key.
func PackageP12(certDER []byte, key *rsa.PrivateKey, passphrase string) ([]byte, error) {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	p12, err := pkcs12.Modern.Encode(key, cert, nil, passphrase)
	if err != nil {
		return nil, fmt.Errorf("encode pkcs12: %w", err)
	}
	return p12, nil
}
