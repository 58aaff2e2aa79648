package domain

import (
	"context"
	"log/slog"
)

type loggingInventory struct {
	logger *slog.Logger
	next   Inventory
}

func NewLoggingInventory(logger *slog.Logger, next Inventory) Inventory {
	if logger == nil || next == nil {
		return next
	}

	return &loggingInventory{
		logger: logger,
		next:   next,
	}
}

func (s *loggingInventory) FetchIPMapping(ctx context.Context, domainID *int64) (IPMappings, error) {
	mapping, err := s.next.FetchIPMapping(ctx, domainID)
	scope := "fleet"
	if domainID != nil {
		scope = "domain"
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "fetch ip mapping failed", "scope", scope, "domain_id", derefID(domainID), "err", err.Error())
		return nil, err
	}

	s.logger.DebugContext(ctx, "ip mapping fetched", "scope", scope, "domain_id", derefID(domainID), "hostnames", len(mapping))
	return mapping, nil
}

func (s *loggingInventory) FetchRRsetMapping(ctx context.Context, domainID int64) (RRsetMappings, error) {
	mapping, err := s.next.FetchRRsetMapping(ctx, domainID)
	if err != nil {
		s.logger.ErrorContext(ctx, "fetch rrset mapping failed", "domain_id", domainID, "err", err.Error())
		return nil, err
	}

	s.logger.DebugContext(ctx, "rrset mapping fetched", "domain_id", domainID, "names", len(mapping))
	return mapping, nil
}

func (s *loggingInventory) DefaultDomain(ctx context.Context) (Domain, error) {
	d, err := s.next.DefaultDomain(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "get default domain failed", "err", err.Error())
	}
	return d, err
}

func (s *loggingInventory) DelegatedChildren(ctx context.Context, parent Domain) ([]Delegation, error) {
	children, err := s.next.DelegatedChildren(ctx, parent)
	if err != nil {
		s.logger.ErrorContext(ctx, "list delegated children failed", "domain", parent.Name, "err", err.Error())
		return nil, err
	}

	s.logger.DebugContext(ctx, "delegated children listed", "domain", parent.Name, "children", len(children))
	return children, nil
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
