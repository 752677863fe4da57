package core

import (
	"context"
	"testing"

	"heritagestore/internal/infra/persistence/memory"
	"heritagestore/pkg/domain"
)

func TestDefaultRulesEngineNames(t *testing.T) {
	got := NewDefaultRulesEngine().Rules()
	if len(got) != 2 || got[0] != RuleLoanSingleActive || got[1] != RuleConservationRestorerKnown {
		t.Fatalf("unexpected rules %v", got)
	}
}

func TestLoanSingleActiveRule(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store,
		Loan{ID: "loan_a", ArtifactID: "art_1", Status: domain.LoanActive},
		Loan{ID: "loan_b", ArtifactID: "art_1", Status: domain.LoanPending},
		Artifact{ID: "art_1", Title: "A", Loans: []string{"loan_a", "loan_b"}},
	)
	rule := loanSingleActiveRule{}

	cases := []struct {
		name   string
		change Change
		warn   bool
	}{
		{
			name:   "artifact with one active loan",
			change: Change{Collection: domain.CollectionArtifacts, Key: "art_1", After: Artifact{ID: "art_1", Loans: []string{"loan_a", "loan_b"}}},
		},
		{
			name:   "activating a second referenced loan",
			change: Change{Collection: domain.CollectionLoans, Key: "loan_b", After: Loan{ID: "loan_b", ArtifactID: "art_1", Status: domain.LoanActive}},
			warn:   true,
		},
		{
			name:   "re-saving the active loan",
			change: Change{Collection: domain.CollectionLoans, Key: "loan_a", After: Loan{ID: "loan_a", ArtifactID: "art_1", Status: domain.LoanActive}},
		},
		{
			name:   "pending loan is ignored",
			change: Change{Collection: domain.CollectionLoans, Key: "loan_b", After: Loan{ID: "loan_b", ArtifactID: "art_1", Status: domain.LoanPending}},
		},
		{
			name:   "loan for unknown artifact",
			change: Change{Collection: domain.CollectionLoans, Key: "loan_x", After: Loan{ID: "loan_x", ArtifactID: "ghost", Status: domain.LoanActive}},
		},
		{
			name:   "unrelated record",
			change: Change{Collection: domain.CollectionPeople, Key: "p", After: Person{ID: "p"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := rule.Evaluate(ctx, store, tc.change)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got := len(res.Violations) > 0; got != tc.warn {
				t.Fatalf("warn=%v want %v: %+v", got, tc.warn, res)
			}
			if res.HasBlocking() {
				t.Fatalf("advisory rule must not block")
			}
		})
	}
}

func TestConservationRestorerKnownRule(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, Person{ID: "person_1", Name: "Arun"})
	rule := conservationRestorerKnownRule{}

	res, err := rule.Evaluate(ctx, store, Change{Collection: domain.CollectionConservations, Key: "c1", After: ConservationRecord{ID: "c1", RestorerID: "person_1"}})
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("known restorer: %+v %v", res, err)
	}
	res, err = rule.Evaluate(ctx, store, Change{Collection: domain.CollectionConservations, Key: "c2", After: ConservationRecord{ID: "c2", RestorerID: "ghost"}})
	if err != nil || len(res.Violations) != 1 || res.Violations[0].Severity != SeverityWarn || res.Violations[0].EntityID != "c2" {
		t.Fatalf("unknown restorer: %+v %v", res, err)
	}
}
