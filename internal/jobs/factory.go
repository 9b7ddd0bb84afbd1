package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"commerce-ingest-worker/internal/clock"
	"commerce-ingest-worker/internal/config"
	"commerce-ingest-worker/internal/model"
	"commerce-ingest-worker/internal/sourceclient/ads"
	"commerce-ingest-worker/internal/sourceclient/commerce"
	"commerce-ingest-worker/internal/store"
)

const (
	secretCommerceOfflineToken = "commerce_offline_token"
	secretAdsAccessToken       = "ads_access_token"
	adsBaseURL                 = "https://graph.adsplatform.example/v19.0"
)

// NewCommerceClientFactory builds the CommerceClientFactory used by the
// commerce handlers, loading the integration's offline token from the
// secret store.
func NewCommerceClientFactory(s *store.Store, cfg config.Config, log *zap.Logger) CommerceClientFactory {
	return func(ctx context.Context, integ model.Integration) (*commerce.Client, string, error) {
		token, err := s.GetSecret(ctx, integ.ID, secretCommerceOfflineToken)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", model.ErrAuth, err)
		}
		account, err := s.GetAccount(ctx, integ.AccountID)
		if err != nil {
			return nil, "", err
		}

		client := commerce.New(commerce.Config{
			ShopDomain:   integ.ExternalRef,
			OfflineToken: token,
			APIVersion:   cfg.CommerceAPIVersion,
			IPv4Override: cfg.IPv4Override,
		}, log)

		return client, account.Currency, nil
	}
}

// NewAdsClientFactory builds the AdsClientFactory used by the ads
// handlers, sharing the dispatcher's clock so backoff sleeps advance the
// same time source tests control.
func NewAdsClientFactory(s *store.Store, cfg config.Config, cl clock.Clock, log *zap.Logger) AdsClientFactory {
	return func(ctx context.Context, integ model.Integration) (*ads.Client, error) {
		token, err := s.GetSecret(ctx, integ.ID, secretAdsAccessToken)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", model.ErrAuth, err)
		}

		return ads.New(ads.Config{
			BaseURL:      adsBaseURL,
			AccessToken:  token,
			AdAccountRef: integ.ExternalRef,
			IPv4Override: cfg.IPv4Override,
			Clock:        cl,
		}, log), nil
	}
}
