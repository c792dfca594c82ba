package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	natsclient "github.com/aprovia-ai/be-ap-autoapprove/internal/nats"
)

// DirectoryClient resolves reviewer users from the platform directory service
// over NATS request-reply.
//
// It is only consulted when a provider has no active assignments, to find the
// group's fallback review queue. The directory service is not deployed in
// every environment, so lookup failures degrade to an empty result and the
// caller falls back to its configured default reviewer.
type DirectoryClient struct {
	nats    *natsclient.Client
	log     zerolog.Logger
	timeout time.Duration
}

// NewDirectoryClient creates a directory client backed by the given NATS client.
func NewDirectoryClient(nats *natsclient.Client, log zerolog.Logger) *DirectoryClient {
	return &DirectoryClient{
		nats:    nats,
		log:     log,
		timeout: 3 * time.Second,
	}
}

type reviewerRequest struct {
	GroupID string `json:"group_id"`
}

type reviewerResponse struct {
	UserIDs []string `json:"user_ids"`
}

// GroupReviewers returns the user ids in a group's review queue.
// Returns an empty slice when the directory is unreachable or has no entry.
func (c *DirectoryClient) GroupReviewers(ctx context.Context, groupID string) []string {
	if c.nats == nil {
		return nil
	}

	data, err := json.Marshal(reviewerRequest{GroupID: groupID})
	if err != nil {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := c.nats.Request(reqCtx, "directory.groups.reviewers", data)
	if err != nil {
		c.log.Debug().Err(err).
			Str("group_id", groupID).
			Msg("directory: reviewer lookup failed, using fallback")
		return nil
	}

	var resp reviewerResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		c.log.Warn().Err(err).
			Str("group_id", groupID).
			Msg("directory: malformed reviewer response")
		return nil
	}
	return resp.UserIDs
}
