package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"heritagestore/pkg/domain"
)

// DemoReport holds the identifiers created by SeedDemo and the views read
// back from the store afterwards.
type DemoReport struct {
	RestorerID     string               `json:"restorer_id"`
	LenderID       string               `json:"lender_id"`
	BorrowerID     string               `json:"borrower_id"`
	ArtifactID     string               `json:"artifact_id"`
	VersionID      string               `json:"version_id"`
	SurrogateID    string               `json:"surrogate_id"`
	ConservationID string               `json:"conservation_id"`
	LoanID         string               `json:"loan_id"`
	Status         ArtifactStatus       `json:"status"`
	ByMaterial     []Artifact           `json:"by_material"`
	ByRestorer     []ConservationRecord `json:"by_restorer"`
	Preview        SurrogatePreview     `json:"preview"`
	Warnings       []Violation          `json:"warnings,omitempty"`
}

// SeedDemo registers a restorer, two institutions and a catalogued painting
// with a surrogate, a conservation treatment and an active loan, then reads
// the derived views back. When the service has a blob store the surrogate
// file is ingested as well.
func SeedDemo(ctx context.Context, s *Service) (DemoReport, error) {
	var (
		report DemoReport
		res    Result
	)
	collect := func(r Result, err error) error {
		res.Merge(r)
		return err
	}

	role := "Restorer"
	restorer := Person{ID: domain.NewID("person"), Name: "Arun Kumar", Role: &role}
	lender := Institution{ID: domain.NewID("inst"), Name: "Metro Museum"}
	borrower := Institution{ID: domain.NewID("inst"), Name: "City Archive"}
	for _, rec := range []Record{restorer, lender, borrower} {
		if err := collect(s.Register(ctx, rec)); err != nil {
			return report, err
		}
	}

	material := "oil on canvas"
	artifact := Artifact{
		ID:          domain.NewID("art"),
		Title:       "Portrait of Marina",
		Creator:     "Unknown Artist",
		DateCreated: "1784-01-01",
		Material:    &material,
		Dimensions:  map[string]float64{"h_cm": 120, "w_cm": 90},
	}
	if err := collect(s.Register(ctx, artifact)); err != nil {
		return report, err
	}
	_, r, err := s.AddArtifactVersion(ctx, artifact.ID, ArtifactVersion{
		Timestamp: s.clock.Now().UTC().Format(time.RFC3339Nano),
		Notes:     "Initial catalog entry",
		Snapshot:  map[string]any{"condition": "fair"},
	})
	if err := collect(r, err); err != nil {
		return report, err
	}

	surrogate := DigitalSurrogate{ID: domain.NewID("dig"), FileRef: "marina_highres.tif", FileType: "tif"}
	if s.blobs != nil {
		surrogate, r, err = s.IngestSurrogate(ctx, surrogate, strings.NewReader("II*\x00 marina high resolution scan"))
		if err := collect(r, err); err != nil {
			return report, err
		}
	}
	surrogate, r, err = s.AttachSurrogate(ctx, artifact.ID, surrogate)
	if err := collect(r, err); err != nil {
		return report, err
	}

	cons, r, err := s.AttachConservation(ctx, artifact.ID, ConservationRecord{
		Date:             "2023-08-15",
		RestorerID:       restorer.ID,
		Treatment:        "cleaning and varnish removal",
		BeforeSurrogates: []string{surrogate.ID},
		AfterSurrogates:  []string{},
	})
	if err := collect(r, err); err != nil {
		return report, err
	}

	loan, r, err := s.AttachLoan(ctx, artifact.ID, Loan{
		FromInstitution: lender.ID,
		ToInstitution:   borrower.ID,
		StartDate:       "2024-01-10",
		EndDate:         "2024-04-10",
		Status:          domain.LoanActive,
	})
	if err := collect(r, err); err != nil {
		return report, err
	}

	stored, ok, err := s.Artifact(artifact.ID)
	if err != nil {
		return report, err
	}
	if !ok {
		return report, fmt.Errorf("demo artifact %s missing after registration", artifact.ID)
	}

	report = DemoReport{
		RestorerID:     restorer.ID,
		LenderID:       lender.ID,
		BorrowerID:     borrower.ID,
		ArtifactID:     stored.ID,
		SurrogateID:    surrogate.ID,
		ConservationID: cons.ID,
		LoanID:         loan.ID,
		Warnings:       res.Violations,
	}
	if v, ok := stored.CurrentVersion(); ok {
		report.VersionID = v.ID
	}
	if report.Status, err = s.Status(ctx, stored.ID); err != nil {
		return report, err
	}
	if report.ByMaterial, err = s.ArtifactsByMaterial(ctx, "oil"); err != nil {
		return report, err
	}
	if report.ByRestorer, err = s.ConservationByRestorer(ctx, restorer.ID); err != nil {
		return report, err
	}
	if report.Preview, err = s.SurrogatePreview(ctx, surrogate.ID); err != nil {
		return report, err
	}
	return report, nil
}
