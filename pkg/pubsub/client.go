// Package pubsub wraps the Pub/Sub v2 client for the two storefront roles:
// the outbox publisher writes the orders topic, the analytics worker reads
// the orders subscription.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/gcp"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
)

// Role selects the resource a client checks at boot and on Ping.
type Role int

const (
	RolePublisher Role = iota
	RoleConsumer
)

type Client struct {
	client  *pubsub.Client
	project string
	cfg     config.PubSubConfig
	role    Role
}

// NewClient dials Pub/Sub and fails unless the role's resource exists.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcpCfg.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	opts, err := gcp.ClientOptions(gcpCfg)
	if err != nil {
		return nil, err
	}
	conn, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: conn, project: project, cfg: cfg, role: role}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project_id": project, "resource": c.resource()}), "pubsub client ready")
	}
	return c, nil
}

// resource is the full name of the topic or subscription the role needs.
func (c *Client) resource() string {
	if c.role == RoleConsumer {
		return resourceName(c.project, "subscriptions", c.cfg.OrdersSubscription)
	}
	return resourceName(c.project, "topics", c.cfg.OrdersTopic)
}

// Ping looks the role's resource up through the admin API.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	name := c.resource()
	if name == "" {
		if c.role == RoleConsumer {
			return errors.New("pubsub orders subscription is required")
		}
		return errors.New("pubsub orders topic is required")
	}

	var err error
	if c.role == RoleConsumer {
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	} else {
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s does not exist", name)
	default:
		return fmt.Errorf("looking up %s: %w", name, err)
	}
}

// Subscription returns a subscriber for a short or full subscription name,
// with flow control taken from the config.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.project, "subscriptions", name)
	if full == "" {
		return nil
	}
	sub := c.client.Subscriber(full)
	if c.cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstanding
	}
	return sub
}

func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.OrdersSubscription)
}

// Publisher returns a publisher for a short or full topic name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.project, "topics", name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short name to projects/<p>/<kind>/<name>. Names that
// are already full paths of the same kind pass through.
func resourceName(project, kind, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/"):
		return name
	case strings.TrimSpace(project) == "":
		return ""
	}
	return "projects/" + strings.TrimSpace(project) + "/" + kind + "/" + name
}
