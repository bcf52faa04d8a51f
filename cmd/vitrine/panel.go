package main

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pitabwire/vitrine/internal/card"
	"github.com/pitabwire/vitrine/internal/config"
	"github.com/pitabwire/vitrine/internal/dashboard"
	"github.com/pitabwire/vitrine/internal/definition"
	"github.com/pitabwire/vitrine/internal/menu"
	"github.com/pitabwire/vitrine/internal/resource"
	"github.com/pitabwire/vitrine/model"
)

const welcomeBody = "Dashboards, metrics and resources are declared in the definition files this server loads."

// panel holds everything built from definition files. Reloading swaps
// the registries in place so the router keeps serving during a reload.
type panel struct {
	cfg      config.DefinitionsConfig
	db       *gorm.DB
	logger   *zap.Logger
	recorder dashboard.FailureRecorder
	opts     []definition.BuilderOption

	definitions *definition.Registry
	dashboards  *dashboard.Registry
	resources   *resource.Registry
	menu        atomic.Pointer[[]menu.Entry]
}

func newPanel(cfg config.DefinitionsConfig, db *gorm.DB, logger *zap.Logger, recorder dashboard.FailureRecorder, opts ...definition.BuilderOption) (*panel, error) {
	dashboards, err := dashboard.NewRegistry()
	if err != nil {
		return nil, err
	}
	resources, err := resource.NewRegistry()
	if err != nil {
		return nil, err
	}
	opts = append([]definition.BuilderOption{
		definition.WithLogger(logger),
		definition.WithFailureRecorder(recorder),
	}, opts...)
	return &panel{
		cfg:         cfg,
		db:          db,
		logger:      logger,
		recorder:    recorder,
		opts:        opts,
		definitions: definition.NewRegistry(nil),
		dashboards:  dashboards,
		resources:   resources,
	}, nil
}

// Menu returns the current navigation entries.
func (p *panel) Menu() []menu.Entry {
	if m := p.menu.Load(); m != nil {
		return *m
	}
	return nil
}

// load reads, validates and builds every definition file, then swaps the
// result in. Files whose combined checksum matches the panel in service are
// not rebuilt. On error the previous panel stays in service.
func (p *panel) load() (files int, err error) {
	defs, err := definition.NewLoader(p.cfg.StrictChecksums).LoadAll(p.cfg.Directories)
	if err != nil {
		return 0, err
	}
	if p.dashboards.Len() > 0 && definition.Checksum(defs) == p.definitions.Checksum() {
		p.logger.Info("definitions unchanged", zap.String("checksum", p.definitions.Checksum()))
		return len(defs), nil
	}

	cards := card.NewRegistry()
	if err := cards.RegisterCard(card.NewHelp("Welcome", welcomeBody)); err != nil {
		return 0, err
	}

	errs, warnings := definition.NewValidator(cards.Keys()...).Validate(defs)
	for _, w := range warnings {
		p.logger.Warn("definition warning", zap.String("path", w.Path), zap.String("code", w.Code), zap.String("message", w.Message))
	}
	if len(errs) > 0 {
		for _, e := range errs {
			p.logger.Error("definition error", zap.String("path", e.Path), zap.String("code", e.Code), zap.String("message", e.Message))
		}
		return 0, fmt.Errorf("definitions: %d validation errors", len(errs))
	}

	built, err := definition.NewBuilder(p.db, cards, p.opts...).Build(defs)
	if err != nil {
		return 0, fmt.Errorf("definitions: build: %w", err)
	}

	dashboards := built.Dashboards
	if !hasMain(dashboards) {
		home := dashboard.NewMain(cards, []string{"help"},
			dashboard.WithLogger(p.logger), dashboard.WithFailureRecorder(p.recorder))
		dashboards = append([]dashboard.Dashboard{home}, dashboards...)
	}

	if err := p.swap(defs, dashboards, built.Resources, built.Menu); err != nil {
		return 0, err
	}

	domains := make([]string, 0, p.definitions.Len())
	for _, d := range p.definitions.Domains() {
		domains = append(domains, d.Domain)
	}
	p.logger.Info("definitions loaded",
		zap.Int("files", len(defs)),
		zap.Strings("domains", domains),
		zap.Int("dashboards", p.dashboards.Len()),
		zap.Int("resources", len(built.Resources)),
		zap.String("checksum", p.definitions.Checksum()),
	)
	return len(defs), nil
}

func hasMain(dashboards []dashboard.Dashboard) bool {
	for _, d := range dashboards {
		if d.URIKey() == dashboard.MainURIKey {
			return true
		}
	}
	return false
}

// swap stages the dashboard and resource sets and commits them together
// with defs and entries. Nothing changes when either set is rejected.
func (p *panel) swap(defs []model.DomainDefinition, dashboards []dashboard.Dashboard, resources []*resource.Resource, entries []menu.Entry) error {
	stagedDashboards, err := dashboard.NewRegistry(dashboards...)
	if err != nil {
		return err
	}
	stagedResources, err := resource.NewRegistry(resources...)
	if err != nil {
		return err
	}

	p.dashboards.Adopt(stagedDashboards)
	p.resources.Adopt(stagedResources)
	p.definitions.Replace(defs)
	p.menu.Store(&entries)
	return nil
}
