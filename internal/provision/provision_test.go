package provision

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/cryptox"
	"github.com/dmitrop/storeflight/internal/logging"
	"github.com/dmitrop/storeflight/internal/store"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// issueCert signs a certificate for the public key carried in csrPEM, the
// way the API issues one for a submitted CSR.
func issueCert(t *testing.T, csrPEM []byte) []byte {
	t.Helper()

	block, _ := pem.Decode(csrPEM)
	require.NotNil(t, block)
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	require.NoError(t, err)

	caKey, _, err := cryptox.GenerateKeyAndCSR("test ca")
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, csr.PublicKey, caKey)
	require.NoError(t, err)
	return der
}

// ---- fakes ----

type fakeCertService struct {
	t *testing.T

	ListRet   []asc.Certificate
	ListErr   error
	CreateErr error
	// EmptyContent makes creation return a certificate without content.
	EmptyContent bool

	CreateCalls int
	DeleteCalls int
	LastType    asc.CertificateType
	nextID      int
}

func (f *fakeCertService) ListCertificates(ctx context.Context, t asc.CertificateType) ([]asc.Certificate, error) {
	f.LastType = t
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []asc.Certificate
	for _, c := range f.ListRet {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCertService) CreateCertificate(ctx context.Context, csr []byte, t asc.CertificateType) (*asc.Certificate, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.CreateCalls++
	f.nextID++
	cert := &asc.Certificate{ID: fmt.Sprintf("cert-new-%d", f.nextID), Type: t}
	if !f.EmptyContent {
		cert.Content = issueCert(f.t, csr)
	}
	return cert, nil
}

func (f *fakeCertService) DeleteCertificate(ctx context.Context, id string) error {
	f.DeleteCalls++
	return nil
}

type fakeProfileService struct {
	profiles []asc.Profile

	CreateCalls   int
	DeleteCalls   int
	DeletedIDs    []string
	LastName      string
	LastBundle    string
	LastCertIDs   []string
	LastDeviceIDs []string
	nextID        int
}

func (f *fakeProfileService) ListProfiles(ctx context.Context, name string) ([]asc.Profile, error) {
	var out []asc.Profile
	for _, p := range f.profiles {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProfileService) CreateProfile(ctx context.Context, name string, t asc.ProfileType, bundleResourceID string, certificateIDs, deviceIDs []string) (*asc.Profile, error) {
	f.CreateCalls++
	f.nextID++
	f.LastName = name
	f.LastBundle = bundleResourceID
	f.LastCertIDs = certificateIDs
	f.LastDeviceIDs = deviceIDs

	p := asc.Profile{
		ID:      fmt.Sprintf("profile-%d", f.nextID),
		Name:    name,
		Type:    t,
		Content: []byte("mobileprovision payload " + name),
	}
	f.profiles = append(f.profiles, p)
	return &p, nil
}

func (f *fakeProfileService) DeleteProfile(ctx context.Context, id string) error {
	f.DeleteCalls++
	f.DeletedIDs = append(f.DeletedIDs, id)
	for i, p := range f.profiles {
		if p.ID == id {
			f.profiles = append(f.profiles[:i], f.profiles[i+1:]...)
			break
		}
	}
	return nil
}

type fakeDeviceService struct {
	ListRet []asc.Device
	ListErr error
}

func (f *fakeDeviceService) ListDevices(ctx context.Context, platform asc.Platform, status asc.DeviceStatus) ([]asc.Device, error) {
	return f.ListRet, f.ListErr
}

func (f *fakeDeviceService) RegisterDevice(ctx context.Context, name, udid string, platform asc.Platform) (*asc.Device, error) {
	return &asc.Device{ID: "dev-new", Name: name, UDID: udid, Platform: platform}, nil
}

type fakeBundleService struct {
	IDs map[string]string
}

func (f *fakeBundleService) GetBundleResourceID(ctx context.Context, identifier string) (string, error) {
	return f.IDs[identifier], nil
}

// ---- helpers ----

type env struct {
	certs    *fakeCertService
	profiles *fakeProfileService
	devices  *fakeDeviceService
	bundles  *fakeBundleService
	store    *store.MemoryStore
	syncer   *Syncer
	manager  *CertificateManager
	psync    *ProfileSyncer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		certs:    &fakeCertService{t: t},
		profiles: &fakeProfileService{},
		devices:  &fakeDeviceService{},
		bundles:  &fakeBundleService{IDs: map[string]string{"com.example.app": "res-1"}},
		store:    store.NewMemoryStore(),
	}
	log := testLogger()
	e.manager = NewCertificateManager(e.certs, e.store, log)
	e.psync = NewProfileSyncer(e.profiles, e.devices, e.bundles, e.store, log)
	e.syncer = NewSyncer(e.manager, e.psync, log)
	return e
}

// ---- certificate tests ----

func TestFindValidCertificate_NoStoreBlob(t *testing.T) {
	e := newEnv(t)
	e.certs.ListRet = []asc.Certificate{{ID: "cert-1", Type: asc.CertificateTypeDistribution}}

	id, err := e.manager.FindValidCertificate(context.Background(), asc.CertificateTypeDistribution, asc.PlatformIOS)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFindValidCertificate_StoreAndAPIMatch(t *testing.T) {
	e := newEnv(t)
	e.certs.ListRet = []asc.Certificate{{ID: "cert-1", Type: asc.CertificateTypeDistribution}}
	require.NoError(t, e.store.WriteFile("certificates/ios/distribution/cert-1.p12", []byte("blob")))

	id, err := e.manager.FindValidCertificate(context.Background(), asc.CertificateTypeDistribution, asc.PlatformIOS)
	require.NoError(t, err)
	assert.Equal(t, "cert-1", id)
	assert.Equal(t, 0, e.certs.CreateCalls)
}

func TestFindValidCertificate_TypeScoped(t *testing.T) {
	e := newEnv(t)
	e.certs.ListRet = []asc.Certificate{
		{ID: "cert-dev", Type: asc.CertificateTypeDevelopment},
		{ID: "cert-dist", Type: asc.CertificateTypeDistribution},
	}
	// only the development blob exists in the store
	require.NoError(t, e.store.WriteFile("certificates/ios/development/cert-dev.p12", []byte("blob")))

	id, err := e.manager.FindValidCertificate(context.Background(), asc.CertificateTypeDistribution, asc.PlatformIOS)
	require.NoError(t, err)
	assert.Empty(t, id, "a development blob must not satisfy a distribution lookup")

	id, err = e.manager.FindValidCertificate(context.Background(), asc.CertificateTypeDevelopment, asc.PlatformIOS)
	require.NoError(t, err)
	assert.Equal(t, "cert-dev", id)
}

func TestEnsureCertificate_CreatesAndStoresEncrypted(t *testing.T) {
	e := newEnv(t)
	passphrase := []byte("hunter2")

	id, err := e.manager.EnsureCertificate(context.Background(), asc.CertificateTypeDistribution, asc.PlatformIOS, passphrase, false, true)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, e.certs.CreateCalls)
	assert.Equal(t, 1, e.store.Pulls)
	require.Len(t, e.store.Commits, 1)

	blob, err := e.store.ReadFile("certificates/ios/distribution/" + id + ".p12")
	require.NoError(t, err)

	// the stored blob is an encryption envelope around a pkcs12 archive
	archive, err := cryptox.Decrypt(blob, passphrase)
	require.NoError(t, err)
	assert.NotEmpty(t, archive)

	_, err = cryptox.Decrypt(blob, []byte("wrong"))
	require.Error(t, err)
}

func TestEnsureCertificate_MissingContent(t *testing.T) {
	e := newEnv(t)
	e.certs.EmptyContent = true

	_, err := e.manager.EnsureCertificate(context.Background(), asc.CertificateTypeDistribution, asc.PlatformIOS, []byte("p"), false, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asc.ErrMissingData))
}

// ---- profile tests ----

func TestEnsureProfile_UnknownBundleID(t *testing.T) {
	e := newEnv(t)

	err := e.psync.EnsureProfile(context.Background(), "com.unknown.app", asc.ProfileTypeIOSAppStore, asc.PlatformIOS, []string{"cert-1"}, false, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asc.ErrNotFound))
	assert.Contains(t, err.Error(), "com.unknown.app")
	assert.Equal(t, 0, e.profiles.CreateCalls)
}

func TestEnsureProfile_DeviceAttachment(t *testing.T) {
	e := newEnv(t)
	e.devices.ListRet = []asc.Device{
		{ID: "dev-1", Status: asc.DeviceStatusEnabled},
		{ID: "dev-2", Status: asc.DeviceStatusEnabled},
	}

	err := e.psync.EnsureProfile(context.Background(), "com.example.app", asc.ProfileTypeIOSDevelopment, asc.PlatformIOS, []string{"cert-1"}, false, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-1", "dev-2"}, e.profiles.LastDeviceIDs)
	assert.Equal(t, "res-1", e.profiles.LastBundle)
}

func TestEnsureProfile_EmptyDeviceListWarnsNotFails(t *testing.T) {
	e := newEnv(t)

	err := e.psync.EnsureProfile(context.Background(), "com.example.app", asc.ProfileTypeIOSDevelopment, asc.PlatformIOS, []string{"cert-1"}, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, e.profiles.CreateCalls)
	assert.Empty(t, e.profiles.LastDeviceIDs)
}

func TestEnsureProfile_StoreProfilesNoDevices(t *testing.T) {
	e := newEnv(t)
	e.devices.ListErr = errors.New("should not be called")

	err := e.psync.EnsureProfile(context.Background(), "com.example.app", asc.ProfileTypeIOSAppStore, asc.PlatformIOS, []string{"cert-1"}, false, false)
	require.NoError(t, err)
	assert.Empty(t, e.profiles.LastDeviceIDs)
}

// ---- sync orchestration tests ----

func TestSync_Idempotent(t *testing.T) {
	e := newEnv(t)
	req := Request{
		Platform:    asc.PlatformIOS,
		ProfileType: asc.ProfileTypeIOSAppStore,
		BundleIDs:   []string{"com.example.app"},
		Passphrase:  []byte("p"),
	}

	require.NoError(t, e.syncer.Sync(context.Background(), req))
	assert.Equal(t, 1, e.certs.CreateCalls)
	assert.Equal(t, 1, e.profiles.CreateCalls)

	// the certificate now exists in the API listing for reuse checks
	e.certs.ListRet = []asc.Certificate{{ID: "cert-new-1", Type: asc.CertificateTypeDistribution}}

	require.NoError(t, e.syncer.Sync(context.Background(), req))
	assert.Equal(t, 1, e.certs.CreateCalls, "second sync must not create a certificate")
	assert.Equal(t, 1, e.profiles.CreateCalls, "second sync must not create a profile")
	assert.Equal(t, 0, e.profiles.DeleteCalls)
}

func TestSync_ForceRecreatesProfile(t *testing.T) {
	e := newEnv(t)
	req := Request{
		Platform:    asc.PlatformIOS,
		ProfileType: asc.ProfileTypeIOSAppStore,
		BundleIDs:   []string{"com.example.app"},
		Passphrase:  []byte("p"),
	}

	require.NoError(t, e.syncer.Sync(context.Background(), req))
	firstID := e.profiles.profiles[0].ID

	req.Force = true
	require.NoError(t, e.syncer.Sync(context.Background(), req))

	assert.Equal(t, 1, e.profiles.DeleteCalls)
	assert.Equal(t, []string{firstID}, e.profiles.DeletedIDs)
	require.Len(t, e.profiles.profiles, 1)
	assert.NotEqual(t, firstID, e.profiles.profiles[0].ID)
	assert.Equal(t, 2, e.certs.CreateCalls, "force also recreates the certificate")
}

func TestSync_CertificateTypeFollowsProfileType(t *testing.T) {
	e := newEnv(t)
	req := Request{
		Platform:    asc.PlatformIOS,
		ProfileType: asc.ProfileTypeIOSDevelopment,
		BundleIDs:   []string{"com.example.app"},
		Passphrase:  []byte("p"),
	}

	require.NoError(t, e.syncer.Sync(context.Background(), req))
	assert.Equal(t, asc.CertificateTypeDevelopment, e.certs.LastType)
}

func TestSync_FailFast(t *testing.T) {
	e := newEnv(t)
	req := Request{
		Platform:    asc.PlatformIOS,
		ProfileType: asc.ProfileTypeIOSAppStore,
		BundleIDs:   []string{"com.unknown.app", "com.example.app"},
		Passphrase:  []byte("p"),
	}

	err := e.syncer.Sync(context.Background(), req)
	require.Error(t, err)
	// the failure on the first bundle id halts the batch
	assert.Equal(t, 0, e.profiles.CreateCalls)
}

func TestSync_NoBundleIDs(t *testing.T) {
	e := newEnv(t)
	err := e.syncer.Sync(context.Background(), Request{Platform: asc.PlatformIOS, ProfileType: asc.ProfileTypeIOSAppStore})
	require.Error(t, err)
}
