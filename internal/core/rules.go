package core

import (
	"context"
	"fmt"

	"heritagestore/pkg/domain"
)

// Rule names.
const (
	RuleLoanSingleActive          = "loan_single_active"
	RuleConservationRestorerKnown = "conservation_restorer_known"
)

// NewDefaultRulesEngine returns an engine with the built-in advisory rules.
// Both only warn: the store never refuses a write on their account.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(loanSingleActiveRule{})
	engine.Register(conservationRestorerKnownRule{})
	return engine
}

// loanSingleActiveRule warns when an artifact would reference more than one
// ACTIVE loan. Only the first one counts as the artifact's current loan.
type loanSingleActiveRule struct{}

func (loanSingleActiveRule) Name() string { return RuleLoanSingleActive }

func (r loanSingleActiveRule) Evaluate(_ context.Context, view RecordReader, change Change) (Result, error) {
	var (
		artifact Artifact
		pending  *Loan
	)
	switch after := change.After.(type) {
	case Artifact:
		artifact = after
	case Loan:
		if after.Status != domain.LoanActive || after.ArtifactID == "" {
			return Result{}, nil
		}
		a, ok, err := domain.Lookup[Artifact](view, domain.CollectionArtifacts, after.ArtifactID)
		if err != nil || !ok {
			return Result{}, err
		}
		artifact, pending = a, &after
	default:
		return Result{}, nil
	}

	active := 0
	for _, ref := range artifact.Loans {
		if pending != nil && ref == change.Key {
			active++
			continue
		}
		loan, ok, err := domain.Lookup[Loan](view, domain.CollectionLoans, ref)
		if err != nil {
			return Result{}, err
		}
		if ok && loan.Status == domain.LoanActive {
			active++
		}
	}
	if active <= 1 {
		return Result{}, nil
	}
	return Result{Violations: []Violation{{
		Rule:     r.Name(),
		Severity: SeverityWarn,
		Message:  fmt.Sprintf("artifact %s references %d active loans", artifact.ID, active),
		Entity:   change.Collection,
		EntityID: change.Key,
	}}}, nil
}

// conservationRestorerKnownRule warns when a conservation record names a
// restorer that is not in people.
type conservationRestorerKnownRule struct{}

func (conservationRestorerKnownRule) Name() string { return RuleConservationRestorerKnown }

func (r conservationRestorerKnownRule) Evaluate(_ context.Context, view RecordReader, change Change) (Result, error) {
	rec, ok := change.After.(ConservationRecord)
	if !ok {
		return Result{}, nil
	}
	_, found, err := view.Get(domain.CollectionPeople, rec.RestorerID)
	if err != nil || found {
		return Result{}, err
	}
	return Result{Violations: []Violation{{
		Rule:     r.Name(),
		Severity: SeverityWarn,
		Message:  fmt.Sprintf("restorer %q not found", rec.RestorerID),
		Entity:   change.Collection,
		EntityID: change.Key,
	}}}, nil
}
