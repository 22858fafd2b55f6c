package services

import (
	"context"
	"fmt"
)

// FleetResolver maps an operator to the fleet (tenant) whose records they manage.
type FleetResolver interface {
	FleetOf(ctx context.Context, operatorID string) (string, error)
}

// PathResolver turns a logical collection name into a storage path scoped
// by the acting operator's fleet. Without a resolver, or for operators
// without a fleet, the bare collection name is used.
type PathResolver struct {
	fleets FleetResolver
}

func NewPathResolver(fleets FleetResolver) *PathResolver {
	return &PathResolver{fleets: fleets}
}

func (p *PathResolver) Resolve(ctx context.Context, collection, operatorID string) (string, error) {
	if p == nil || p.fleets == nil {
		return collection, nil
	}
	fleetID, err := p.fleets.FleetOf(ctx, operatorID)
	if err != nil {
		return "", fmt.Errorf("resolve fleet of %s: %w", operatorID, err)
	}
	if fleetID == "" {
		return collection, nil
	}
	return "fleets/" + fleetID + "/" + collection, nil
}
