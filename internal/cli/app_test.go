package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrop/storeflight/internal/asc"
)

type fakeDeviceService struct {
	ListRet []asc.Device
	ListErr error

	LastName     string
	LastUDID     string
	LastPlatform asc.Platform
}

func (f *fakeDeviceService) ListDevices(ctx context.Context, platform asc.Platform, status asc.DeviceStatus) ([]asc.Device, error) {
	return f.ListRet, f.ListErr
}

func (f *fakeDeviceService) RegisterDevice(ctx context.Context, name, udid string, platform asc.Platform) (*asc.Device, error) {
	f.LastName = name
	f.LastUDID = udid
	f.LastPlatform = platform
	return &asc.Device{ID: "dev-1", Name: name, UDID: udid, Platform: platform}, nil
}

func newTestApp() (*App, *bytes.Buffer, *fakeDeviceService) {
	out := &bytes.Buffer{}
	devices := &fakeDeviceService{}
	return &App{out: out, devices: devices}, out, devices
}

func TestRun_NoCommand(t *testing.T) {
	app, out, _ := newTestApp()
	err := app.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, out.String(), "Usage:")
}

func TestRun_UnknownCommand(t *testing.T) {
	app, _, _ := newTestApp()
	err := app.Run(context.Background(), []string{"teleport"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

func TestRun_Help(t *testing.T) {
	app, out, _ := newTestApp()
	require.NoError(t, app.Run(context.Background(), []string{"help"}))
	assert.Contains(t, out.String(), "approach")
	assert.Contains(t, out.String(), "provision")
}

func TestRunApproach_MissingFlags(t *testing.T) {
	app, _, _ := newTestApp()
	err := app.Run(context.Background(), []string{"approach", "-bundle-id", "com.example.app"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestRunProvision_MissingBundleIDs(t *testing.T) {
	app, _, _ := newTestApp()
	err := app.Run(context.Background(), []string{"provision", "-passphrase", "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle-ids")
}

func TestRunDevices_List(t *testing.T) {
	app, out, devices := newTestApp()
	devices.ListRet = []asc.Device{
		{ID: "d-1", UDID: "00008110-AAA", Name: "iPhone 14 Pro"},
	}

	require.NoError(t, app.Run(context.Background(), []string{"devices", "list"}))
	assert.Contains(t, out.String(), "00008110-AAA")
	assert.Contains(t, out.String(), "1 enabled devices")
}

func TestRunDevices_ListError(t *testing.T) {
	app, _, devices := newTestApp()
	devices.ListErr = errors.New("forbidden")

	err := app.Run(context.Background(), []string{"devices", "list"})
	require.Error(t, err)
}

func TestRunDevices_RegisterWithModelName(t *testing.T) {
	app, out, devices := newTestApp()

	err := app.Run(context.Background(), []string{
		"devices", "register", "-udid", "00008110-BBB", "-model", "iPhone15,2",
	})
	require.NoError(t, err)
	assert.Equal(t, "iPhone 14 Pro", devices.LastName)
	assert.Equal(t, "00008110-BBB", devices.LastUDID)
	assert.Equal(t, asc.PlatformIOS, devices.LastPlatform)
	assert.Contains(t, out.String(), "registered")
}

func TestRunDevices_RegisterRequiresUDID(t *testing.T) {
	app, _, _ := newTestApp()
	err := app.Run(context.Background(), []string{"devices", "register", "-name", "test phone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "udid")
}

func TestRunDevices_UnknownSubcommand(t *testing.T) {
	app, _, _ := newTestApp()
	err := app.Run(context.Background(), []string{"devices", "erase"})
	require.Error(t, err)
}
