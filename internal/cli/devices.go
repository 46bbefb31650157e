package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/devicename"
)

func (a *App) runDevices(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("devices: expected 'list' or 'register'")
	}

	switch args[0] {
	case "list":
		return a.listDevices(ctx, args[1:])
	case "register":
		return a.registerDevice(ctx, args[1:])
	}
	return fmt.Errorf("devices: unknown subcommand %s", args[0])
}

func (a *App) listDevices(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("devices list", flag.ContinueOnError)
	platform := fs.String("platform", string(asc.PlatformIOS), "platform: IOS, MAC_OS or TV_OS")
	if err := fs.Parse(args); err != nil {
		return err
	}

	devices, err := a.devices.ListDevices(ctx, asc.Platform(*platform), asc.DeviceStatusEnabled)
	if err != nil {
		return err
	}

	for _, d := range devices {
		fmt.Fprintf(a.out, "%s\t%s\t%s\n", d.ID, d.UDID, d.Name)
	}
	fmt.Fprintf(a.out, "%d enabled devices\n", len(devices))
	return nil
}

func (a *App) registerDevice(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("devices register", flag.ContinueOnError)
	udid := fs.String("udid", "", "device UDID")
	name := fs.String("name", "", "device name (defaults to the model marketing name)")
	model := fs.String("model", "", "model identifier, e.g. iPhone15,2")
	platform := fs.String("platform", string(asc.PlatformIOS), "platform: IOS, MAC_OS or TV_OS")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *udid == "" {
		return fmt.Errorf("devices register: -udid is required")
	}

	deviceName := *name
	if deviceName == "" && *model != "" {
		deviceName = devicename.NameFor(*model)
	}
	if deviceName == "" {
		return fmt.Errorf("devices register: -name or -model is required")
	}

	device, err := a.devices.RegisterDevice(ctx, deviceName, *udid, asc.Platform(*platform))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "registered %s (%s) as %s\n", device.Name, device.UDID, device.ID)
	return nil
}
