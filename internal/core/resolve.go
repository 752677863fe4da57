package core

import (
	"heritagestore/pkg/domain"
)

// ArtifactStatus is the derived display view of an artifact. Pointer fields
// are nil when the underlying relationship is absent.
type ArtifactStatus struct {
	ArtifactID       string  `json:"artifact_id"`
	Title            string  `json:"title"`
	OnLoan           bool    `json:"on_loan"`
	LoanRef          *string `json:"loan_ref"`
	CurrentVersion   *string `json:"current_version"`
	LastConservation *string `json:"last_conservation"`
}

// CurrentVersion returns the artifact version with the greatest timestamp.
func CurrentVersion(a Artifact) (ArtifactVersion, bool) {
	return a.CurrentVersion()
}

// IsOnLoan returns the first loan referenced by a whose status is ACTIVE.
// References that do not resolve are skipped.
func IsOnLoan(r RecordReader, a Artifact) (Loan, bool, error) {
	for _, ref := range a.Loans {
		loan, ok, err := domain.Lookup[Loan](r, domain.CollectionLoans, ref)
		if err != nil {
			return Loan{}, false, err
		}
		if ok && loan.Status == domain.LoanActive {
			return loan, true, nil
		}
	}
	return Loan{}, false, nil
}

// ActiveLoans returns every referenced loan whose status is ACTIVE, in
// reference order.
func ActiveLoans(r RecordReader, a Artifact) ([]Loan, error) {
	var out []Loan
	for _, ref := range a.Loans {
		loan, ok, err := domain.Lookup[Loan](r, domain.CollectionLoans, ref)
		if err != nil {
			return nil, err
		}
		if ok && loan.Status == domain.LoanActive {
			out = append(out, loan)
		}
	}
	return out, nil
}

// LastConservation resolves the artifact's conservation references and
// returns the one with the greatest date.
func LastConservation(r RecordReader, a Artifact) (ConservationRecord, bool, error) {
	resolved := make([]ConservationRecord, 0, len(a.ConservationRecords))
	for _, ref := range a.ConservationRecords {
		rec, ok, err := domain.Lookup[ConservationRecord](r, domain.CollectionConservations, ref)
		if err != nil {
			return ConservationRecord{}, false, err
		}
		if ok {
			resolved = append(resolved, rec)
		}
	}
	rec, ok := domain.LatestConservation(resolved)
	return rec, ok, nil
}

// DisplayStatus builds the status view of a.
func DisplayStatus(r RecordReader, a Artifact) (ArtifactStatus, error) {
	status := ArtifactStatus{ArtifactID: a.ID, Title: a.Title}
	loan, onLoan, err := IsOnLoan(r, a)
	if err != nil {
		return ArtifactStatus{}, err
	}
	if onLoan {
		status.OnLoan = true
		status.LoanRef = &loan.ID
	}
	if v, ok := a.CurrentVersion(); ok {
		status.CurrentVersion = &v.ID
	}
	cons, ok, err := LastConservation(r, a)
	if err != nil {
		return ArtifactStatus{}, err
	}
	if ok {
		status.LastConservation = &cons.ID
	}
	return status, nil
}
