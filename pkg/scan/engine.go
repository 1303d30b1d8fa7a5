package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/partnerwatch/ppscan/pkg/log"
	"github.com/partnerwatch/ppscan/pkg/rule"
)

// Engine evaluates pages against one policy. It holds only read-only state
// and is safe for concurrent use.
type Engine struct {
	tracer       trace.Tracer
	gate         *ContextGate
	rules        []*rule.Rule
	suppressions []*Suppression
}

// EngineOpt configures an [Engine].
type EngineOpt func(*Engine)

// WithRules sets the compiled rules, in policy order.
func WithRules(rules []*rule.Rule) EngineOpt {
	return func(e *Engine) {
		e.rules = rules
	}
}

// WithContextGate sets the subject context gate.
func WithContextGate(gate *ContextGate) EngineOpt {
	return func(e *Engine) {
		e.gate = gate
	}
}

// WithSuppressions sets the suppression list, in policy order.
func WithSuppressions(suppressions []*Suppression) EngineOpt {
	return func(e *Engine) {
		e.suppressions = suppressions
	}
}

// NewEngine creates an [Engine]. Rules must already be compiled; the policy
// loader guarantees this for YAML-loaded policies.
func NewEngine(opts ...EngineOpt) (*Engine, error) {
	e := &Engine{
		tracer: otel.Tracer("scan-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.gate == nil {
		gate, err := NewContextGate(GateConfig{})
		if err != nil {
			return nil, err
		}

		e.gate = gate
	}

	return e, nil
}

// EvaluatePage runs all rules against one page and returns the surviving
// findings in rule order, then occurrence order. A panic during evaluation is
// isolated to this page: it is returned as an error and the page contributes
// zero findings.
func (e *Engine) EvaluatePage(ctx context.Context, page Page) (findings []Finding, err error) {
	ctx, span := e.tracer.Start(ctx, "evaluate-page", trace.WithAttributes(
		attribute.String("url", page.PageURL()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = fmt.Errorf("evaluate page %s: %v", page.PageURL(), r)
		}
	}()

	if page.Text == "" {
		return nil, nil
	}

	if !e.gate.PageEligible(page.Text) {
		log.WithContext(ctx).Debug("page not subject-related, skipping",
			slog.String("url", page.PageURL()),
		)

		return nil, nil
	}

	pageCtx := rule.PageContext{
		URL:    page.PageURL(),
		Status: page.Status,
		Title:  page.Title,
	}

	for _, r := range e.rules {
		if !r.AppliesTo(pageCtx) {
			continue
		}

		for _, m := range r.Evaluate(page.Text) {
			if !e.gate.Keep(page.Text, m) {
				continue
			}
			if e.suppressed(page.PageURL(), m) {
				continue
			}

			findings = append(findings, Finding{
				RuleID:         r.ID,
				Taxonomy:       r.Taxonomy,
				Severity:       r.Severity,
				PageURL:        page.PageURL(),
				MatchText:      m.Text,
				Snippet:        m.Snippet,
				Recommendation: r.Recommendation,
				Screenshot:     page.Screenshot,
			})
		}
	}

	span.SetAttributes(attribute.Int("findings", len(findings)))

	return findings, nil
}

// EvaluatePages evaluates pages with up to parallel workers and returns one
// finding slice per page, in input order. Output order is a deterministic
// function of input order regardless of worker scheduling. Per-page errors
// are logged and leave that page with zero findings.
func (e *Engine) EvaluatePages(ctx context.Context, pages []Page, parallel int) [][]Finding {
	results := make([][]Finding, len(pages))

	if parallel <= 1 {
		for i, page := range pages {
			results[i] = e.evaluateIsolated(ctx, page)
		}

		return results
	}

	var wg sync.WaitGroup

	sem := make(chan struct{}, parallel)

	for i, page := range pages {
		wg.Add(1)

		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = e.evaluateIsolated(ctx, page)
		}()
	}

	wg.Wait()

	return results
}

func (e *Engine) evaluateIsolated(ctx context.Context, page Page) []Finding {
	findings, err := e.EvaluatePage(ctx, page)
	if err != nil {
		log.WithContext(ctx).Error("page evaluation failed",
			slog.String("url", page.PageURL()),
			slog.Any("error", err),
		)

		return nil
	}

	return findings
}

// suppressed reports whether any suppression applies to the match.
// Suppressions are independent; applying the list is idempotent.
func (e *Engine) suppressed(pageURL string, m rule.Match) bool {
	for _, s := range e.suppressions {
		if s.Matches(pageURL, m) {
			return true
		}
	}

	return false
}

// ErrNoRules is returned by [Engine.Validate] when the engine has no rules.
var ErrNoRules = errors.New("engine has no rules")

// Validate checks that the engine is runnable.
func (e *Engine) Validate() error {
	if len(e.rules) == 0 {
		return ErrNoRules
	}

	return nil
}
