package filemanagerutil

import (
	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/filemanager"
)

// ProviderConfigFromEnv builds the provider settings for bucket, filling credentials from conf.
func ProviderConfigFromEnv(provider, bucket, prefix string, conf *config.Config) map[string]interface{} {
	return filemanager.GetProviderConfigFromEnv(ProviderConfigOpts(provider, bucket, prefix, conf))
}

func ProviderConfigOpts(provider, bucket, prefix string, conf *config.Config) filemanager.ProviderConfigOpts {
	return filemanager.ProviderConfigOpts{
		Provider: provider,
		Bucket:   bucket,
		Prefix:   prefix,
		Config:   conf,
	}
}
