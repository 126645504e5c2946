package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/flowry/internal/campaign"
	"github.com/foxzi/flowry/internal/flow"
	"github.com/foxzi/flowry/internal/jobs"
	"github.com/foxzi/flowry/internal/reference"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "flowry.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createCampaign(t *testing.T, s *Store, owner, name string) *campaign.Campaign {
	t.Helper()
	c := campaign.New(owner, name, "everclear", "Acquire New Users")
	if err := s.CreateCampaign(context.Background(), c); err != nil {
		t.Fatalf("CreateCampaign() error = %v", err)
	}
	return c
}

func TestCampaignCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := createCampaign(t, s, "alice", "Spring")
	if c.StructureVersion != 1 {
		t.Errorf("StructureVersion = %d, want 1", c.StructureVersion)
	}

	got, err := s.GetCampaign(ctx, "alice", c.ID)
	if err != nil {
		t.Fatalf("GetCampaign() error = %v", err)
	}
	if got.Name != "Spring" || got.Structure.Nodes == nil {
		t.Errorf("GetCampaign() = %+v", got)
	}

	if _, err := s.GetCampaign(ctx, "bob", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCampaign(other owner) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetCampaign(ctx, "alice", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCampaign(missing) error = %v, want ErrNotFound", err)
	}

	got, err = s.MutateCampaign(ctx, "alice", c.ID, AnyVersion, func(c *campaign.Campaign) error {
		c.Name = "Spring v2"
		return nil
	})
	if err != nil {
		t.Fatalf("MutateCampaign() error = %v", err)
	}
	if got.Name != "Spring v2" || got.StructureVersion != 1 {
		t.Errorf("MutateCampaign() = %q version %d, want version 1 when structure unchanged", got.Name, got.StructureVersion)
	}

	got, err = s.MutateCampaign(ctx, "alice", c.ID, 1, func(c *campaign.Campaign) error {
		return c.Structure.AddNode(flow.Node{ID: "n1", Type: flow.TypeEmail})
	})
	if err != nil {
		t.Fatalf("MutateCampaign() error = %v", err)
	}
	if got.StructureVersion != 2 {
		t.Errorf("StructureVersion = %d, want 2 after structure change", got.StructureVersion)
	}
	if _, err := s.MutateCampaign(ctx, "alice", c.ID, 1, func(*campaign.Campaign) error { return nil }); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("MutateCampaign(stale) error = %v, want ErrVersionConflict", err)
	}
	if _, err := s.MutateCampaign(ctx, "bob", c.ID, AnyVersion, func(*campaign.Campaign) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("MutateCampaign(other owner) error = %v, want ErrNotFound", err)
	}

	if err := s.DeleteCampaign(ctx, "bob", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteCampaign(other owner) error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteCampaign(ctx, "alice", c.ID); err != nil {
		t.Fatalf("DeleteCampaign() error = %v", err)
	}
	if _, err := s.GetCampaign(ctx, "alice", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCampaign() after delete error = %v, want ErrNotFound", err)
	}
}

func TestListCampaignsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := createCampaign(t, s, "alice", "first")
	time.Sleep(2 * time.Millisecond)
	second := createCampaign(t, s, "alice", "second")
	createCampaign(t, s, "bob", "other")

	list, err := s.ListCampaigns(ctx, "alice")
	if err != nil {
		t.Fatalf("ListCampaigns() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(ListCampaigns) = %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("order = [%s %s], want newest first", list[0].Name, list[1].Name)
	}

	n, err := s.CountCampaigns(ctx)
	if err != nil || n != 3 {
		t.Errorf("CountCampaigns() = %d, %v, want 3", n, err)
	}
}

func TestMutateStructure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createCampaign(t, s, "alice", "flow")

	updated, err := s.MutateStructure(ctx, "alice", c.ID, 1, func(g *flow.Graph) error {
		return g.AddNode(flow.Node{ID: "e1", Type: flow.TypeEmail})
	})
	if err != nil {
		t.Fatalf("MutateStructure() error = %v", err)
	}
	if updated.StructureVersion != 2 || len(updated.Structure.Nodes) != 1 {
		t.Errorf("updated = version %d, %d nodes", updated.StructureVersion, len(updated.Structure.Nodes))
	}

	// stale version
	_, err = s.MutateStructure(ctx, "alice", c.ID, 1, func(g *flow.Graph) error { return nil })
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("MutateStructure(stale) error = %v, want ErrVersionConflict", err)
	}

	// fn error aborts the write
	_, err = s.MutateStructure(ctx, "alice", c.ID, AnyVersion, func(g *flow.Graph) error {
		return g.AddNode(flow.Node{ID: "e1", Type: flow.TypeEmail})
	})
	if !errors.Is(err, flow.ErrDuplicateNode) {
		t.Errorf("MutateStructure(dup) error = %v, want ErrDuplicateNode", err)
	}
	got, _ := s.GetCampaign(ctx, "alice", c.ID)
	if got.StructureVersion != 2 {
		t.Errorf("StructureVersion = %d after failed mutation, want 2", got.StructureVersion)
	}
}

func TestMutateStructureConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createCampaign(t, s, "alice", "busy")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.MutateStructure(ctx, "alice", c.ID, AnyVersion, func(g *flow.Graph) error {
				return g.AddNode(flow.Node{ID: string(rune('a' + i)), Type: flow.TypePush})
			})
			if err != nil {
				t.Errorf("MutateStructure() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := s.GetCampaign(ctx, "alice", c.ID)
	if len(got.Structure.Nodes) != 10 {
		t.Errorf("len(Nodes) = %d, want 10", len(got.Structure.Nodes))
	}
	if got.StructureVersion != 11 {
		t.Errorf("StructureVersion = %d, want 11", got.StructureVersion)
	}
}

func TestMutateCampaignKeepsConcurrentStructureEdits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createCampaign(t, s, "alice", "racing")

	// a request loads the campaign, then another request adds a node
	loaded, err := s.GetCampaign(ctx, "alice", c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.MutateStructure(ctx, "alice", c.ID, AnyVersion, func(g *flow.Graph) error {
		return g.AddNode(flow.Node{ID: "n1", Type: flow.TypeEmail})
	}); err != nil {
		t.Fatalf("MutateStructure() error = %v", err)
	}

	got, err := s.MutateCampaign(ctx, "alice", c.ID, AnyVersion, func(c *campaign.Campaign) error {
		c.LogPerformance(map[string]float64{"open_rate": 21})
		return nil
	})
	if err != nil {
		t.Fatalf("MutateCampaign() error = %v", err)
	}
	if len(got.Structure.Nodes) != 1 || got.StructureVersion != 2 {
		t.Errorf("after log performance: %d nodes, version %d, want 1 node, version 2", len(got.Structure.Nodes), got.StructureVersion)
	}
	if got.Status != campaign.StatusCompleted {
		t.Errorf("Status = %v, want completed", got.Status)
	}

	// writes guarded by the version the caller loaded are rejected once the structure moved on
	_, err = s.MutateCampaign(ctx, "alice", c.ID, loaded.StructureVersion, func(c *campaign.Campaign) error {
		c.PredictedPerformance = map[string]float64{"open_rate": 20}
		return nil
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("MutateCampaign(stale) error = %v, want ErrVersionConflict", err)
	}

	// fn errors abort the write
	_, err = s.MutateCampaign(ctx, "alice", c.ID, AnyVersion, func(c *campaign.Campaign) error {
		c.Name = "discarded"
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected fn error")
	}
	stored, _ := s.GetCampaign(ctx, "alice", c.ID)
	if stored.Name != "racing" || len(stored.Structure.Nodes) != 1 || stored.PredictedPerformance != nil {
		t.Errorf("stored = %+v", stored)
	}
}

func newJob(t *testing.T, campaignID string, typ jobs.Type) *jobs.Job {
	t.Helper()
	j, err := jobs.NewJob(campaignID, "alice", typ, map[string]string{"node_id": "n1"})
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createCampaign(t, s, "alice", "jobs")

	first := newJob(t, c.ID, jobs.TypeCopyGrading)
	if err := s.CreateJob(ctx, first); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	time.Sleep(time.Millisecond)
	second := newJob(t, c.ID, jobs.TypeFunnelAnalysis)
	if err := s.CreateJob(ctx, second); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if err := s.CreateJob(ctx, newJob(t, "missing", jobs.TypeCopyGrading)); !errors.Is(err, ErrNotFound) {
		t.Errorf("CreateJob(missing campaign) error = %v, want ErrNotFound", err)
	}

	claimed, err := s.ClaimNextJob(ctx)
	if err != nil {
		t.Fatalf("ClaimNextJob() error = %v", err)
	}
	if claimed == nil || claimed.JobID != first.JobID {
		t.Fatalf("ClaimNextJob() = %+v, want first job", claimed)
	}
	if claimed.Status != jobs.StatusProcessing {
		t.Errorf("Status = %s, want processing", claimed.Status)
	}

	result := json.RawMessage(`{"score":8}`)
	done, err := s.FinishJob(ctx, claimed.JobID, jobs.StatusComplete, result)
	if err != nil {
		t.Fatalf("FinishJob() error = %v", err)
	}
	if done.Status != jobs.StatusComplete || string(done.Result) != `{"score":8}` {
		t.Errorf("FinishJob() = %+v", done)
	}

	if _, err := s.FinishJob(ctx, claimed.JobID, jobs.StatusFailed, nil); !errors.Is(err, ErrJobFinalized) {
		t.Errorf("FinishJob(terminal) error = %v, want ErrJobFinalized", err)
	}
	if _, err := s.FinishJob(ctx, second.JobID, jobs.StatusProcessing, nil); err == nil {
		t.Error("FinishJob(non-terminal status) should fail")
	}

	next, _ := s.ClaimNextJob(ctx)
	if next == nil || next.JobID != second.JobID {
		t.Fatalf("ClaimNextJob() = %+v, want second job", next)
	}
	if idle, _ := s.ClaimNextJob(ctx); idle != nil {
		t.Errorf("ClaimNextJob() on empty queue = %+v, want nil", idle)
	}

	stats, err := s.JobStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Complete != 1 || stats.Processing != 1 {
		t.Errorf("JobStats() = %+v", stats)
	}

	list, _ := s.ListJobs(ctx, jobs.ListFilter{CampaignID: c.ID})
	if len(list) != 2 || list[0].JobID != first.JobID {
		t.Errorf("ListJobs(campaign) = %d jobs", len(list))
	}
	list, _ = s.ListJobs(ctx, jobs.ListFilter{Status: jobs.StatusComplete})
	if len(list) != 1 {
		t.Errorf("ListJobs(complete) = %d jobs, want 1", len(list))
	}
	list, _ = s.ListJobs(ctx, jobs.ListFilter{Limit: 1})
	if len(list) != 1 {
		t.Errorf("ListJobs(limit 1) = %d jobs, want 1", len(list))
	}
}

func TestDeleteCampaignCascadesJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createCampaign(t, s, "alice", "cascade")
	other := createCampaign(t, s, "alice", "keep")

	j := newJob(t, c.ID, jobs.TypePDFExport)
	s.CreateJob(ctx, j)
	kept := newJob(t, other.ID, jobs.TypePDFExport)
	s.CreateJob(ctx, kept)

	if err := s.DeleteCampaign(ctx, "alice", c.ID); err != nil {
		t.Fatalf("DeleteCampaign() error = %v", err)
	}
	if _, err := s.GetJob(ctx, j.JobID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob() after cascade error = %v, want ErrNotFound", err)
	}

	claimed, _ := s.ClaimNextJob(ctx)
	if claimed == nil || claimed.JobID != kept.JobID {
		t.Errorf("ClaimNextJob() = %+v, want job of surviving campaign", claimed)
	}
}

func TestDeleteOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createCampaign(t, s, "alice", "one")
	createCampaign(t, s, "alice", "two")
	b := createCampaign(t, s, "bob", "three")
	j := newJob(t, a.ID, jobs.TypeCopyGrading)
	s.CreateJob(ctx, j)

	n, err := s.DeleteOwner(ctx, "alice")
	if err != nil || n != 2 {
		t.Fatalf("DeleteOwner() = %d, %v, want 2", n, err)
	}
	if list, _ := s.ListCampaigns(ctx, "alice"); len(list) != 0 {
		t.Errorf("alice still has %d campaigns", len(list))
	}
	if _, err := s.GetJob(ctx, j.JobID); !errors.Is(err, ErrNotFound) {
		t.Errorf("job survived owner deletion: %v", err)
	}
	if _, err := s.GetCampaign(ctx, "bob", b.ID); err != nil {
		t.Errorf("bob's campaign was removed: %v", err)
	}
}

func TestCleanupAndStaleJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := createCampaign(t, s, "alice", "cleanup")

	done := newJob(t, c.ID, jobs.TypeCopyGrading)
	s.CreateJob(ctx, done)
	s.ClaimNextJob(ctx)
	s.FinishJob(ctx, done.JobID, jobs.StatusComplete, nil)

	stuck := newJob(t, c.ID, jobs.TypeAIRewrite)
	s.CreateJob(ctx, stuck)
	s.ClaimNextJob(ctx)

	pending := newJob(t, c.ID, jobs.TypeFunnelAnalysis)
	s.CreateJob(ctx, pending)

	time.Sleep(10 * time.Millisecond)

	n, err := s.CleanupJobs(ctx, 5*time.Millisecond)
	if err != nil || n != 1 {
		t.Errorf("CleanupJobs() = %d, %v, want 1", n, err)
	}
	if n, _ := s.CleanupJobs(ctx, 0); n != 0 {
		t.Errorf("CleanupJobs(0) = %d, want 0", n)
	}

	n, err = s.FailStaleJobs(ctx, 5*time.Millisecond)
	if err != nil || n != 1 {
		t.Errorf("FailStaleJobs() = %d, %v, want 1", n, err)
	}
	got, _ := s.GetJob(ctx, stuck.JobID)
	if got.Status != jobs.StatusFailed {
		t.Errorf("stuck job status = %s, want failed", got.Status)
	}

	p, _ := s.GetJob(ctx, pending.JobID)
	if p.Status != jobs.StatusPending {
		t.Errorf("pending job status = %s, want pending", p.Status)
	}
}

func TestTemplates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.SeedTemplates(ctx, reference.Default().SeedTemplates())
	if err != nil {
		t.Fatalf("SeedTemplates() error = %v", err)
	}
	if added != len(reference.Default().SeedTemplates()) {
		t.Errorf("SeedTemplates() added %d", added)
	}
	again, _ := s.SeedTemplates(ctx, reference.Default().SeedTemplates())
	if again != 0 {
		t.Errorf("second SeedTemplates() added %d, want 0", again)
	}

	list, err := s.ListTemplates(ctx, TemplateFilter{})
	if err != nil {
		t.Fatal(err)
	}
	seenNonRecommended := false
	for i, tpl := range list {
		if !tpl.Recommended() {
			seenNonRecommended = true
		} else if seenNonRecommended {
			t.Errorf("recommended template %q listed after a non-recommended one", tpl.Name)
		}
		if i > 0 && list[i-1].Recommended() == tpl.Recommended() && list[i-1].Name > tpl.Name {
			t.Errorf("templates not sorted by name: %q before %q", list[i-1].Name, tpl.Name)
		}
	}

	phrendly, _ := s.ListTemplates(ctx, TemplateFilter{Brand: "phrendly"})
	for _, tpl := range phrendly {
		if tpl.Brand != "phrendly" {
			t.Errorf("brand filter returned %s", tpl.Brand)
		}
	}

	tpl := &campaign.Template{Name: list[0].Name, Brand: "everclear", Goal: "g", Description: "d"}
	if err := s.CreateTemplate(ctx, tpl); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("CreateTemplate(duplicate) error = %v, want ErrDuplicateName", err)
	}

	got, err := s.GetTemplate(ctx, list[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Name = "Renamed"
	if err := s.UpdateTemplate(ctx, got); err != nil {
		t.Fatalf("UpdateTemplate() error = %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}

	if err := s.DeleteTemplate(ctx, got.ID); err != nil {
		t.Fatalf("DeleteTemplate() error = %v", err)
	}
	if _, err := s.GetTemplate(ctx, got.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTemplate() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTemplate(ctx, got.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTemplate(missing) error = %v, want ErrNotFound", err)
	}

	// the freed name can be reused
	reuse := &campaign.Template{Name: "Renamed", Brand: "everclear", Goal: "g", Description: "d"}
	if err := s.CreateTemplate(ctx, reuse); err != nil {
		t.Errorf("CreateTemplate(reused name) error = %v", err)
	}
}
