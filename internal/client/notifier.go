package client

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gritlabs/backend/config"
	"github.com/gritlabs/backend/pkg/api"
	"github.com/gritlabs/backend/pkg/errorx"
	"github.com/puzpuzpuz/xsync"
)

const executeWebhookResource = "execute_webhook"

// Notifier announces portal events on a chat channel. Callers treat it as
// fire-and-forget: a failed notification is logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, content string) error
}

type discordNotifier struct {
	cfg          config.NotifyConfigs
	apiGenerator api.Generator

	rateLimitResource *xsync.MapOf[string, time.Time]
}

func NewDiscordNotifier(cfg config.NotifyConfigs) *discordNotifier {
	return &discordNotifier{
		cfg:               cfg,
		apiGenerator:      api.NewGenerator(),
		rateLimitResource: xsync.NewMapOf[time.Time](),
	}
}

func (n *discordNotifier) Notify(ctx context.Context, content string) error {
	if err := n.checkLimitingResource(executeWebhookResource); err != nil {
		return err
	}

	resp, err := n.apiGenerator.New(n.cfg.DiscordWebhookURL, "").
		Body(api.JSON{"content": content}).
		POST(ctx)
	if err != nil {
		return err
	}

	return n.checkTooManyRequest(resp, executeWebhookResource)
}

func (n *discordNotifier) checkLimitingResource(resource string) error {
	if resetAt, ok := n.rateLimitResource.Load(resource); ok {
		if resetAt.After(time.Now()) {
			return errorx.New(errorx.TooManyRequests,
				"Rate limited until %d", resetAt.Unix())
		}

		// The rate limit is over, forget it.
		n.rateLimitResource.Delete(resource)
	}

	return nil
}

func (n *discordNotifier) checkTooManyRequest(resp *api.Response, resource string) error {
	if resp.Code == http.StatusTooManyRequests {
		resetAt, err := strconv.Atoi(resp.Header.Get("X-Ratelimit-Reset"))
		if err != nil {
			return err
		}

		n.rateLimitResource.Store(resource, time.Unix(int64(resetAt), 0))
		return errorx.New(errorx.TooManyRequests, "Rate limited until %d", resetAt)
	}

	return nil
}
