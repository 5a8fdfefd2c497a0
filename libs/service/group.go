package service

import (
	"context"
	"errors"

	"github.com/optract/optract/libs/log"
)

// Group starts its members in order and stops them in reverse order.
type Group struct {
	BaseService

	logger   log.Logger
	services []Service
}

// NewGroup bundles services under one lifecycle.
func NewGroup(logger log.Logger, name string, services ...Service) *Group {
	g := &Group{logger: logger, services: services}
	g.BaseService = *NewBaseService(logger, name, g)
	return g
}

func (g *Group) OnStart(ctx context.Context) error {
	for idx, srv := range g.services {
		if err := srv.Start(ctx); err != nil {
			for i := idx - 1; i >= 0; i-- {
				_ = g.services[i].Stop()
			}
			return err
		}
	}
	return nil
}

func (g *Group) OnStop() {
	for i := len(g.services) - 1; i >= 0; i-- {
		srv := g.services[i]
		err := srv.Stop()
		switch {
		case err == nil || errors.Is(err, ErrAlreadyStopped):
			srv.Wait()
		default:
			g.logger.Error("problem stopping service", "service", srv.String(), "err", err)
		}
	}
}
