package directory

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/sirupsen/logrus"
)

// CredentialConfig carries the Azure credential settings bound at startup.
type CredentialConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	// Optional. Empty means role assignments are scanned across every
	// subscription visible to the credential.
	SubscriptionID string `mapstructure:"subscription_id"`
}

// CreateCredential creates an Azure credential from the provided
// configuration. Client credentials are used when fully specified,
// otherwise the default credential chain (managed identity, environment
// variables, CLI) applies.
func CreateCredential(cfg CredentialConfig) (azcore.TokenCredential, error) {
	if len(cfg.ClientID) > 0 {
		if len(cfg.ClientSecret) == 0 {
			return nil, fmt.Errorf("client_secret required when using client_id")
		}
		if len(cfg.TenantID) == 0 {
			return nil, fmt.Errorf("tenant_id required when using client credentials")
		}

		logrus.Info("Using Azure client credentials authentication")
		return azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	}

	logrus.Info("Using Azure default credential chain")
	return azidentity.NewDefaultAzureCredential(nil)
}
