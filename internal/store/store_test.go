package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ade/warden/internal/models"
)

func TestStore_Roundtrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "warden-store-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := Open(filepath.Join(tmpDir, "warden.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	started := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	agents := []models.Agent{
		{Name: "w1", MachineID: "m1", Status: models.AgentIdle, Health: models.HealthHealthy,
			Capabilities: []string{"build"}, Metrics: map[string]float64{"cpu": 40}},
	}
	tasks := []models.Task{
		{ID: "t1", Name: "job", Priority: models.PriorityHigh, Status: models.TaskRunning,
			Agent: "w1", StartedAt: &started, Seq: 1},
		{ID: "t2", Name: "other", Priority: models.PriorityNormal, Status: models.TaskPending, Seq: 2},
	}

	if err := s.SaveSnapshot(agents, tasks); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	gotAgents, gotTasks, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(gotAgents) != 1 || len(gotTasks) != 2 {
		t.Fatalf("expected 1 agent / 2 tasks, got %d / %d", len(gotAgents), len(gotTasks))
	}
	if gotAgents[0].Name != "w1" || gotAgents[0].Metrics["cpu"] != 40 {
		t.Errorf("agent state mismatch: %+v", gotAgents[0])
	}
	for _, tk := range gotTasks {
		if tk.ID == "t1" {
			if tk.Status != models.TaskRunning || tk.StartedAt == nil || !tk.StartedAt.Equal(started) {
				t.Errorf("task state mismatch: %+v", tk)
			}
		}
	}
}

func TestStore_SnapshotReplaces(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "warden-store-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := Open(filepath.Join(tmpDir, "warden.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.SaveSnapshot([]models.Agent{{Name: "w1"}, {Name: "w2"}}, nil)
	s.SaveSnapshot([]models.Agent{{Name: "w2"}}, nil)

	agents, _, err := s.LoadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 || agents[0].Name != "w2" {
		t.Errorf("snapshot should fully replace prior state, got %+v", agents)
	}
}

func TestStore_CorruptRecord(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "warden-store-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := Open(filepath.Join(tmpDir, "warden.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.db.Exec(`INSERT INTO tasks (id, data) VALUES ('bad', 'not json')`); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.LoadSnapshot(); err == nil {
		t.Fatal("corrupt record must fail the load")
	}
}

func TestOpen_Reopens(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "warden-store-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "warden.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s.SaveSnapshot([]models.Agent{{Name: "w1"}}, nil)
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	agents, _, err := s2.LoadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 {
		t.Errorf("state lost across reopen: %+v", agents)
	}
}
