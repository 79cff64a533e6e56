package skills

import (
	"context"
	"testing"
)

func resolverManifest(t *testing.T) *Manifest {
	t.Helper()
	dir := t.TempDir()
	writeSkill(t, dir, "deploy-service", "Deploy a service to production", "keywords: [release, rollout]\n")
	writeSkill(t, dir, "check-logs", "Inspect service logs for errors", "keywords: [logs, errors]\n")
	writeSkill(t, dir, "backup-db", "Back up the database", "keywords: [database, backup]\n")

	m := NewManifest(dir)
	if err := m.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestResolveRanksByScore(t *testing.T) {
	m := resolverManifest(t)

	got := m.Resolve("deploy the service")
	if len(got) == 0 {
		t.Fatal("no candidates")
	}
	if got[0].Skill.Name != "deploy-service" {
		t.Errorf("top candidate = %q, want deploy-service", got[0].Skill.Name)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("candidates not in descending score order at %d", i)
		}
	}
}

func TestResolveHighConfidence(t *testing.T) {
	m := resolverManifest(t)

	got := m.Resolve("deploy service")
	if len(got) == 0 {
		t.Fatal("no candidates")
	}
	// Both tokens hit name tokens of deploy-service: full weight.
	if !got[0].HighConfidence() {
		t.Errorf("score %v should be high confidence", got[0].Score)
	}
	if got[0].Score < 0 || got[0].Score > 1 {
		t.Errorf("score %v outside [0,1]", got[0].Score)
	}
}

func TestResolveNoMatch(t *testing.T) {
	m := resolverManifest(t)
	if got := m.Resolve("quantum chromodynamics"); len(got) != 0 {
		t.Errorf("got %d candidates, want 0", len(got))
	}
	if got := m.Resolve(""); got != nil {
		t.Errorf("empty request returned %d candidates", len(got))
	}
}

func TestResolveWeighting(t *testing.T) {
	m := resolverManifest(t)

	// "database" is only a keyword of backup-db, not in its name.
	got := m.Resolve("database")
	if len(got) == 0 {
		t.Fatal("no candidates")
	}
	if got[0].Skill.Name != "backup-db" {
		t.Errorf("top = %q", got[0].Skill.Name)
	}
	want := weightKeyword / weightName
	if got[0].Score != want {
		t.Errorf("score = %v, want %v", got[0].Score, want)
	}
}

func TestResolveTiebreakInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "aaa-first", "shared topic widgets", "")
	writeSkill(t, dir, "bbb-second", "shared topic widgets", "")

	m := NewManifest(dir)
	if err := m.Discover(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := m.Resolve("widgets")
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Skill.Name != "aaa-first" {
		t.Errorf("tie broken wrong: %q first", got[0].Skill.Name)
	}
}

func TestSearch(t *testing.T) {
	m := resolverManifest(t)

	if got := m.Search("logs"); len(got) != 1 || got[0].Name != "check-logs" {
		t.Errorf("search logs = %v", names(got))
	}
	if got := m.Search("SERVICE"); len(got) != 2 {
		t.Errorf("search service found %d, want 2", len(got))
	}
	if got := m.Search(""); got != nil {
		t.Error("empty query should return nil")
	}
}

func names(skills []*Skill) []string {
	out := make([]string, len(skills))
	for i, s := range skills {
		out[i] = s.Name
	}
	return out
}
