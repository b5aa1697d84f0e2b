package gitrepo

import (
	"encoding/json"
	"testing"
)

func pageContent(title, text string) Content {
	raw, _ := json.Marshal([]map[string]any{
		{"type": "paragraph", "content": []map[string]any{{"type": "text", "text": text}}},
	})
	return Content{Title: title, Content: raw}
}

func TestEnsurePageRepoCreatesBaselineCommit(t *testing.T) {
	svc := New(t.TempDir())

	if err := svc.EnsurePageRepo("page_1", pageContent("Trip", "day one"), "Alex"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// Idempotent: a second ensure leaves the repo alone.
	if err := svc.EnsurePageRepo("page_1", pageContent("Other", "ignored"), "Alex"); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	commits, err := svc.History("page_1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("commit count = %d, want the baseline only", len(commits))
	}
	if commits[0].Author != "Alex" {
		t.Fatalf("author = %q", commits[0].Author)
	}

	got, err := svc.ContentAt("page_1", commits[0].Hash)
	if err != nil {
		t.Fatalf("content at baseline: %v", err)
	}
	if got.Title != "Trip" {
		t.Fatalf("baseline title = %q, second ensure must not overwrite", got.Title)
	}
}

func TestCommitSaveAppendsHistoryNewestFirst(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsurePageRepo("page_1", pageContent("Trip", "v1"), "Alex"); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.CommitSave("page_1", pageContent("Trip", "v2"), "Alex", "Save page"); err != nil {
		t.Fatalf("commit v2: %v", err)
	}
	info, err := svc.CommitSave("page_1", pageContent("Trip revised", "v3"), "Sam", "Save page")
	if err != nil {
		t.Fatalf("commit v3: %v", err)
	}
	if info.Author != "Sam" {
		t.Fatalf("author = %q", info.Author)
	}

	commits, err := svc.History("page_1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("commit count = %d, want 3", len(commits))
	}
	if commits[0].Hash != info.Hash {
		t.Fatal("history must be newest first")
	}

	got, err := svc.ContentAt("page_1", commits[0].Hash)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Trip revised" {
		t.Fatalf("head title = %q", got.Title)
	}
	got, err = svc.ContentAt("page_1", commits[2].Hash)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Trip" {
		t.Fatalf("baseline title = %q", got.Title)
	}
}

func TestCommitSaveWithUnchangedContentReusesHead(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsurePageRepo("page_1", pageContent("Trip", "same"), "Alex"); err != nil {
		t.Fatal(err)
	}

	info, err := svc.CommitSave("page_1", pageContent("Trip", "same"), "Alex", "Save page")
	if err != nil {
		t.Fatalf("no-op commit: %v", err)
	}

	commits, err := svc.History("page_1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 1 {
		t.Fatalf("commit count = %d, a no-change save must not add commits", len(commits))
	}
	if info.Hash != commits[0].Hash {
		t.Fatal("no-op save must report the existing head")
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsurePageRepo("page_1", pageContent("Trip", "v1"), "Alex"); err != nil {
		t.Fatal(err)
	}
	for i, text := range []string{"v2", "v3", "v4"} {
		if _, err := svc.CommitSave("page_1", pageContent("Trip", text), "Alex", "Save page"); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	commits, err := svc.History("page_1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 {
		t.Fatalf("limited history length = %d, want 2", len(commits))
	}
}

func TestSanitizeEmail(t *testing.T) {
	cases := map[string]string{
		"Alex Smith": "alex.smith",
		"S@m!":       "sm",
		"":           "user",
		"!!!":        "user",
	}
	for in, want := range cases {
		if got := sanitizeEmail(in); got != want {
			t.Errorf("sanitizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
