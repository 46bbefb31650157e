package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/common"
	"github.com/dmitrop/storeflight/internal/provision"
)

func (a *App) runProvision(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	platform := fs.String("platform", string(asc.PlatformIOS), "platform: IOS, MAC_OS or TV_OS")
	profileType := fs.String("type", string(asc.ProfileTypeIOSAppStore), "profile type, e.g. IOS_APP_STORE or IOS_APP_DEVELOPMENT")
	bundleIDs := fs.String("bundle-ids", "", "comma-separated bundle identifiers")
	passphrase := fs.String("passphrase", "", "certificate passphrase (prompted when empty)")
	force := fs.Bool("force", false, "recreate certificate and profiles even when present")
	push := fs.Bool("push", true, "push store commits to the remote")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var ids []string
	for _, id := range strings.Split(*bundleIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("provision: -bundle-ids is required")
	}

	pw := []byte(*passphrase)
	if len(pw) == 0 {
		var err error
		pw, err = GetPassword(a.out)
		if err != nil {
			return fmt.Errorf("read passphrase: %w", err)
		}
	}
	defer common.WipeByteArray(pw)

	return a.syncer.Sync(ctx, provision.Request{
		Platform:    asc.Platform(*platform),
		ProfileType: asc.ProfileType(*profileType),
		BundleIDs:   ids,
		Passphrase:  pw,
		Force:       *force,
		Push:        *push,
	})
}
