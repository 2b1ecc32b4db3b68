package ingress

import (
	"net"
	"sort"
	"strconv"

	"github.com/cuemby/tempo-operator/pkg/types"
)

// DesiredRoutes returns one route per enabled receiver, each targeting
// address at the receiver's port. No routes are desired unless the
// configuration is eligible for ingress.
func DesiredRoutes(wc types.WorkloadConfig, address string) []types.Route {
	if !wc.RoutesEligible || len(wc.Receivers) == 0 {
		return nil
	}

	routes := make([]types.Route, 0, len(wc.Receivers))
	for _, r := range wc.Receivers {
		info, ok := r.Protocol.Lookup()
		if !ok {
			continue
		}
		routes = append(routes, types.Route{
			Name:      string(r.Protocol),
			Protocol:  r.Protocol,
			Transport: info.Transport,
			Port:      r.Port,
			Path:      r.Path,
			Backend:   net.JoinHostPort(address, strconv.Itoa(r.Port)),
			TLS:       r.TLSRequired,
		})
	}

	sort.Slice(routes, func(i, j int) bool { return routes[i].Name < routes[j].Name })
	return routes
}

// Diff compares desired against published routes. A route whose fields
// changed is returned in update and replaced in place, never retracted.
func Diff(desired []types.Route, published []*types.Route) (add, update []types.Route, remove []string) {
	current := make(map[string]types.Route, len(published))
	for _, r := range published {
		current[r.Name] = *r
	}

	wanted := make(map[string]bool, len(desired))
	for _, r := range desired {
		wanted[r.Name] = true
		existing, ok := current[r.Name]
		switch {
		case !ok:
			add = append(add, r)
		case existing != r:
			update = append(update, r)
		}
	}

	for name := range current {
		if !wanted[name] {
			remove = append(remove, name)
		}
	}
	sort.Strings(remove)
	return add, update, remove
}
