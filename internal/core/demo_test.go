package core

import (
	"context"
	"path/filepath"
	"testing"

	"heritagestore/internal/blob"
	"heritagestore/internal/config"
)

func checkDemoReport(t *testing.T, r DemoReport) {
	t.Helper()
	if !r.Status.OnLoan || r.Status.LoanRef == nil || *r.Status.LoanRef != r.LoanID {
		t.Fatalf("expected artifact on loan %s, got %+v", r.LoanID, r.Status)
	}
	if r.Status.CurrentVersion == nil || *r.Status.CurrentVersion != r.VersionID || r.VersionID == "" {
		t.Fatalf("expected current version %s, got %+v", r.VersionID, r.Status)
	}
	if r.Status.LastConservation == nil || *r.Status.LastConservation != r.ConservationID {
		t.Fatalf("expected last conservation %s, got %+v", r.ConservationID, r.Status)
	}
	if len(r.ByMaterial) != 1 || r.ByMaterial[0].ID != r.ArtifactID {
		t.Fatalf("material query %+v", r.ByMaterial)
	}
	if len(r.ByRestorer) != 1 || r.ByRestorer[0].ID != r.ConservationID {
		t.Fatalf("restorer query %+v", r.ByRestorer)
	}
	if r.Preview.Text != "Preview("+r.SurrogateID+") -> marina_highres.tif (tif)" {
		t.Fatalf("unexpected preview %q", r.Preview.Text)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("demo should not trip advisory rules: %+v", r.Warnings)
	}
}

func TestSeedDemoInMemory(t *testing.T) {
	report, err := SeedDemo(context.Background(), NewInMemoryService(WithClock(fixedClock())))
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	checkDemoReport(t, report)
	if report.Preview.URL != "" {
		t.Fatalf("no blob store, no URL: %+v", report.Preview)
	}
}

func TestSeedDemoDurableWithBlobs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := OpenPersistentStore(ctx, config.Storage{BoltPath: filepath.Join(dir, "heritage.db")}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	blobs, err := blob.NewFilesystem(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("blobs: %v", err)
	}
	report, err := SeedDemo(ctx, NewService(store, WithBlobStore(blobs)))
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	checkDemoReport(t, report)
	if report.Preview.URL == "" {
		t.Fatalf("expected a local URL for the ingested surrogate")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenPersistentStore(ctx, config.Storage{BoltPath: filepath.Join(dir, "heritage.db")}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	status, err := NewService(reopened).Status(ctx, report.ArtifactID)
	if err != nil {
		t.Fatalf("status after reopen: %v", err)
	}
	if !status.OnLoan || *status.LoanRef != report.LoanID {
		t.Fatalf("state lost across reopen: %+v", status)
	}
	d, ok, _ := NewService(reopened).Surrogate(report.SurrogateID)
	if !ok || d.Checksum == "" || d.SizeBytes == 0 {
		t.Fatalf("ingested surrogate metadata lost: %+v", d)
	}
}
