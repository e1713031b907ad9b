// Package policy implements a client for querying per-user limits from the
// Policy Engine.
package policy

import (
	"context"
	"fmt"

	"github.com/danilovkiri/dk-go-settler/internal/config"
	policy "github.com/danilovkiri/dk-go-settler/internal/service/policy/v1"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Client defines attributes of a struct available to its methods.
type Client struct {
	client       *resty.Client
	serverConfig *config.ServerConfig
	log          *zerolog.Logger
}

// InitClient initializes a resty client for the policy engine.
func InitClient(serverConfig *config.ServerConfig, log *zerolog.Logger) *Client {
	policyClient := resty.New()
	log.Info().Msg("policy engine client initialized")
	return &Client{client: policyClient, serverConfig: serverConfig, log: log}
}

// GetEffectiveSettings executes a limits retrieval query for a given member.
func (c *Client) GetEffectiveSettings(ctx context.Context, userID string) (*policy.Settings, error) {
	var settings policy.Settings
	response, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"userID": userID}).
		SetResult(&settings).
		Get(c.serverConfig.PolicyAddress + "/api/policy/{userID}")
	if err != nil {
		c.log.Error().Err(err).Msg(fmt.Sprintf("policy retrieval failed for %s", userID))
		return nil, err
	}
	if response.StatusCode() != 200 {
		err = fmt.Errorf("policy engine responded with status %d", response.StatusCode())
		c.log.Error().Err(err).Msg(fmt.Sprintf("policy retrieval failed for %s", userID))
		return nil, err
	}
	return &settings, nil
}
