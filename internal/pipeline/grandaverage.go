package pipeline

import (
	"context"
	"fmt"

	"nica/internal/bundle"
	"nica/internal/config"
	"nica/internal/grandaverage"
	"nica/internal/logging"
	"nica/internal/services"
	"nica/internal/stage"
)

// Grand-average stage names.
const (
	StageGrandAveragePrepare = "grand_average_prepare"
	StageGrandAverageWrite   = "grand_average_write"
)

// GrandAverageStages lists the stages of a grand-average batch.
var GrandAverageStages = []stage.Spec{
	{Name: StageGrandAveragePrepare, Status: "Prepare Grand Average Data ...", Failure: "Error while preparing Grand Average Data"},
	{Name: StageGrandAverageWrite, Status: "Write Grand Average Output Files ...", Failure: "Could not write Grand Average Output Files!"},
}

// GrandAverageSession is the context of one grand-average batch.
type GrandAverageSession struct {
	RunID       string
	BundlePaths []string
	Analysis    config.Analysis
	Files       grandaverage.Files

	Bundles   []*bundle.Bundle
	Aggregate *bundle.Bundle
	Report    grandaverage.Report
	Artifacts []string

	Warnings []string
	Results  []stage.Result
}

// RunGrandAverage aggregates the bundles at paths, in the given order, into
// the grand-average directory of the configured condition.
func (p *Pipeline) RunGrandAverage(ctx context.Context, paths []string, sink EventSink) (*GrandAverageSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := p.cfg.ForGrandAverage()
	if err := set.Validate(p.cfg.Tuning); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "grand average", "validate", "invalid analysis settings", err)
	}
	marker, _ := set.ConditionMarker()
	gs := &GrandAverageSession{
		RunID:       p.newRunID(),
		BundlePaths: append([]string(nil), paths...),
		Analysis:    cloneAnalysis(set),
		Files:       grandaverage.NewFiles(p.cfg.Paths.AnalysisRoot, set.ConditionLabel(), marker),
	}
	r := p.newRun(ctx, gs.RunID, sink, &gs.Warnings)
	r.logger.Info("grand average started",
		logging.String(logging.FieldEventType, "grand_average_start"),
		logging.Int("bundles", len(paths)),
		logging.String("condition", set.ChosenCondition),
	)
	g := &grandAverage{p: p, s: gs, r: r}
	steps := []step{
		{spec: GrandAverageStages[0], fn: g.prepare},
		{spec: GrandAverageStages[1], fn: g.write},
	}
	return gs, r.execute(ctx, steps, &gs.Results, StatusGrandAverageFinished)
}

type grandAverage struct {
	p *Pipeline
	s *GrandAverageSession
	r *run
}

func (g *grandAverage) prepare(context.Context) error {
	if len(g.s.BundlePaths) < 2 {
		return services.Wrap(services.ErrValidation, "grand average", "prepare",
			fmt.Sprintf("grand average needs at least 2 bundles, got %d", len(g.s.BundlePaths)), nil)
	}
	bundles := make([]*bundle.Bundle, 0, len(g.s.BundlePaths))
	for i, path := range g.s.BundlePaths {
		b, err := bundle.Read(path)
		if err != nil {
			return err
		}
		g.r.output("VP%d: %s", i+1, path)
		bundles = append(bundles, b)
	}
	agg, err := grandaverage.Average(bundles)
	if err != nil {
		return err
	}
	g.s.Bundles = bundles
	g.s.Aggregate = agg
	return nil
}

func (g *grandAverage) write(context.Context) (err error) {
	set := g.s.Analysis
	rep, err := grandaverage.Summarize(g.s.Bundles, g.s.Aggregate.SamplingRate, grandaverage.Options{
		PreTask:  set.PreTaskLength,
		Task:     set.TaskLength,
		PostTask: set.PostTaskLength,
		ROIs:     g.p.cfg.GrandAverage.ROIs,
		Excluded: set.ExcludedChannels,
		Marker:   g.s.Files.Marker,
	})
	if err != nil {
		return err
	}
	if err := g.s.Files.Create(); err != nil {
		return err
	}
	g.r.output("Grand Average Path: %s", g.s.Files.Dir)
	defer func() {
		if err != nil {
			if rmErr := g.s.Files.Remove(); rmErr != nil {
				g.r.warn(fmt.Sprintf("Could not remove incomplete Grand Average Path: %v", rmErr))
			}
		}
	}()
	if err := rep.Write(g.s.Files); err != nil {
		return err
	}
	if err := bundle.Write(g.s.Files.Bundle(), g.s.Aggregate); err != nil {
		return err
	}
	if err := bundle.WriteSettings(g.s.Files.Settings(), set); err != nil {
		return err
	}
	g.s.Report = rep
	g.s.Artifacts = []string{g.s.Files.Oxy(), g.s.Files.Deoxy(), g.s.Files.Bundle(), g.s.Files.Settings()}
	g.r.output("Grand Average Output Files written to %s", g.s.Files.Dir)
	return nil
}
