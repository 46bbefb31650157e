package provision

import (
	"context"
	"fmt"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/logging"
	"github.com/dmitrop/storeflight/internal/store"
)

// ProfileSyncer ensures provisioning profiles exist for bundle ids and
// persists their payloads to the artifact store.
type ProfileSyncer struct {
	profiles asc.ProfileService
	devices  asc.DeviceService
	bundles  asc.BundleIDService
	store    store.ArtifactStore
	log      logging.Logger
}

func NewProfileSyncer(profiles asc.ProfileService, devices asc.DeviceService, bundles asc.BundleIDService, st store.ArtifactStore, log logging.Logger) *ProfileSyncer {
	return &ProfileSyncer{profiles: profiles, devices: devices, bundles: bundles, store: st, log: log}
}

// EnsureProfile creates and stores a profile for bundleID unless the store
// already holds one. With force the API-side profile of the same name is
// deleted first; profiles cannot be updated in place.
func (s *ProfileSyncer) EnsureProfile(ctx context.Context, bundleID string, t asc.ProfileType, platform asc.Platform, certificateIDs []string, force, push bool) error {
	path := profilePath(platform, t, bundleID)

	if !force {
		exists, err := s.store.FileExists(path)
		if err != nil {
			return fmt.Errorf("check store for profile %s: %w", bundleID, err)
		}
		if exists {
			s.log.Info(ctx, "profile already stored", "bundleId", bundleID, "path", path)
			return nil
		}
	}

	name := profileName(t, bundleID)

	if force {
		if err := s.deleteExisting(ctx, name); err != nil {
			return err
		}
	}

	var deviceIDs []string
	if t.RequiresDevices() {
		devices, err := s.devices.ListDevices(ctx, platform, asc.DeviceStatusEnabled)
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		if len(devices) == 0 {
			s.log.Warn(ctx, "no enabled devices registered, profile will not install anywhere", "platform", platform, "type", t)
		}
		for _, d := range devices {
			deviceIDs = append(deviceIDs, d.ID)
		}
	}

	bundleResourceID, err := s.bundles.GetBundleResourceID(ctx, bundleID)
	if err != nil {
		return fmt.Errorf("resolve bundle id %s: %w", bundleID, err)
	}
	if bundleResourceID == "" {
		return fmt.Errorf("bundle id %s is not registered in App Store Connect, register it before syncing profiles: %w", bundleID, asc.ErrNotFound)
	}

	profile, err := s.profiles.CreateProfile(ctx, name, t, bundleResourceID, certificateIDs, deviceIDs)
	if err != nil {
		return fmt.Errorf("create profile %s: %w", name, err)
	}
	if len(profile.Content) == 0 {
		return fmt.Errorf("profile %s created without content: %w", profile.ID, asc.ErrMissingData)
	}

	if err := s.store.WriteFile(path, profile.Content); err != nil {
		return fmt.Errorf("store profile %s: %w", bundleID, err)
	}
	if err := s.store.CommitAndPush(ctx, fmt.Sprintf("add profile %s", name), push); err != nil {
		return fmt.Errorf("commit profile %s: %w", bundleID, err)
	}

	s.log.Info(ctx, "created profile", "profileId", profile.ID, "bundleId", bundleID, "devices", len(deviceIDs))
	return nil
}

func (s *ProfileSyncer) deleteExisting(ctx context.Context, name string) error {
	existing, err := s.profiles.ListProfiles(ctx, name)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	for _, p := range existing {
		if p.Name != name {
			continue
		}
		if err := s.profiles.DeleteProfile(ctx, p.ID); err != nil {
			return fmt.Errorf("delete profile %s: %w", p.ID, err)
		}
		s.log.Info(ctx, "deleted profile for regeneration", "profileId", p.ID, "name", name)
	}
	return nil
}
