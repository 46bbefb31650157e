package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/dmitrop/storeflight/internal/asc"
	"github.com/dmitrop/storeflight/internal/pipeline"
)

func (a *App) runApproach(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("approach", flag.ContinueOnError)
	bundleID := fs.String("bundle-id", "", "app bundle identifier")
	version := fs.String("version", "", "marketing version (CFBundleShortVersionString)")
	buildNumber := fs.String("build", "", "build number (CFBundleVersion)")
	platform := fs.String("platform", string(asc.PlatformIOS), "platform: IOS, MAC_OS or TV_OS")
	file := fs.String("file", "", "path to the build binary (.ipa/.pkg)")
	changelog := fs.String("changelog", "", "what-to-test notes for this build")
	groups := fs.String("groups", "", "comma-separated beta group names")
	review := fs.Bool("review", false, "submit the build for beta review")
	ignoreUpload := fs.Bool("ignore-upload-failure", false, "continue to processing wait when the upload step fails")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bundleID == "" || *version == "" || *buildNumber == "" || *file == "" {
		return fmt.Errorf("approach: -bundle-id, -version, -build and -file are required")
	}

	var groupNames []string
	for _, g := range strings.Split(*groups, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groupNames = append(groupNames, g)
		}
	}

	return a.approach.Run(ctx, pipeline.Request{
		BundleID:            *bundleID,
		Version:             *version,
		BuildNumber:         *buildNumber,
		Platform:            asc.Platform(*platform),
		FilePath:            *file,
		AssetType:           "IPA",
		UTI:                 "com.apple.ipa",
		Changelog:           *changelog,
		BetaGroups:          groupNames,
		SubmitForReview:     *review,
		IgnoreUploadFailure: *ignoreUpload,
	})
}
