package ingress

import (
	"context"
	"strconv"

	"github.com/cuemby/tempo-operator/pkg/relation"
	"github.com/cuemby/tempo-operator/pkg/types"
)

// RouteClient registers routes with the ingress provider
type RouteClient interface {
	// AddRoute registers route, replacing any route of the same name
	AddRoute(ctx context.Context, route types.Route) error
	RemoveRoute(ctx context.Context, name string) error
}

// OutboxRouteClient publishes each route as its own databag on the
// ingress relation, named after the unit and the route.
type OutboxRouteClient struct {
	outbox *relation.Outbox
	unit   string
	host   string
}

// NewOutboxRouteClient creates a client publishing routes for unit.
// host is the unit's advertised hostname.
func NewOutboxRouteClient(outbox *relation.Outbox, unit, host string) *OutboxRouteClient {
	return &OutboxRouteClient{outbox: outbox, unit: unit, host: host}
}

func (c *OutboxRouteClient) bagName(route string) string {
	return c.unit + "-" + route
}

// AddRoute writes the route databag
func (c *OutboxRouteClient) AddRoute(ctx context.Context, route types.Route) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bag := types.Databag{
		"unit":      c.unit,
		"host":      c.host,
		"name":      route.Name,
		"protocol":  string(route.Protocol),
		"transport": string(route.Transport),
		"port":      strconv.Itoa(route.Port),
		"path":      route.Path,
		"backend":   route.Backend,
		"tls":       strconv.FormatBool(route.TLS),
	}
	_, err := c.outbox.Publish(types.RelationIngress, c.bagName(route.Name), bag)
	return err
}

// RemoveRoute deletes the route databag
func (c *OutboxRouteClient) RemoveRoute(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.outbox.Remove(types.RelationIngress, c.bagName(name))
}
