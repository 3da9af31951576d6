package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/3leaps/gonimbus/internal/core"
)

// envProfileResolver resolves a profile id to connection details from
// environment variables, since credential storage is out of scope for
// this core and the GUI's own profile store is the production
// ProfileResolver. The CLI stands in for the GUI here: it is a caller,
// not a credential vault.
//
// Every profile id reads GONIMBUS_PROFILE_<ID>_* variables (id
// upper-cased), each falling back to its unprefixed counterpart
// (AWS_REGION, AWS_ENDPOINT_URL, AWS_PROFILE, AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY, GONIMBUS_FORCE_PATH_STYLE) when unset. The
// AWS_PROFILE value names a profile for the AWS SDK's own credential chain.
type envProfileResolver struct{}

func (envProfileResolver) Get(_ context.Context, profileID string) (core.ProfileCredentials, error) {
	if strings.TrimSpace(profileID) == "" {
		return core.ProfileCredentials{}, fmt.Errorf("profile id is required")
	}

	prefix := "GONIMBUS_PROFILE_" + strings.ToUpper(profileID) + "_"
	get := func(suffix, fallback string) string {
		if v := os.Getenv(prefix + suffix); v != "" {
			return v
		}
		return os.Getenv(fallback)
	}

	return core.ProfileCredentials{
		Region:          get("REGION", "AWS_REGION"),
		Endpoint:        get("ENDPOINT", "AWS_ENDPOINT_URL"),
		AWSProfile:      get("AWS_PROFILE", "AWS_PROFILE"),
		AccessKeyID:     get("ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"),
		SecretAccessKey: get("SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"),
		ForcePathStyle:  get("FORCE_PATH_STYLE", "GONIMBUS_FORCE_PATH_STYLE") == "true",
	}, nil
}
