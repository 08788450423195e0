package searchd

import (
	"context"
	"strings"
	"testing"
)

func openTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestClient_IndexAndSearch(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()

	err := c.IndexRecord(ctx, "wiki", map[string]any{
		"id":      "1",
		"title":   "Clear cookies and site data",
		"content": "Cookies are stored per site. Clearing them signs you out.",
		"slug":    "clear-cookies",
		"locale":  "en-US",
	})
	if err != nil {
		t.Fatalf("IndexRecord: %v", err)
	}

	resp, err := c.Search(ctx, &Request{Query: "cookies", DocTypes: []string{"wiki"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("expected one result, got %+v", resp)
	}

	r := resp.Results[0]
	if r.Type != "document" || r.URL != "/kb/clear-cookies" {
		t.Fatalf("unexpected result shape: %+v", r)
	}
	if !strings.Contains(r.Summary, "<strong>Cookies</strong>") {
		t.Fatalf("summary not highlighted: %q", r.Summary)
	}
}

func TestClient_AdvancedSyntax(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()

	records := []map[string]any{
		{
			"id": "1", "locale": "en-US", "slug": "install-firefox",
			"title":       "Install and update",
			"content":     "How to install and update the browser.",
			"product_ids": []any{"firefox"},
		},
		{
			"id": "2", "locale": "en-US", "slug": "install-focus",
			"title":       "Install and update on mobile",
			"content":     "How to install and update on a phone.",
			"product_ids": []any{"focus"},
		},
	}
	for _, rec := range records {
		if err := c.IndexRecord(ctx, "wiki", rec); err != nil {
			t.Fatalf("IndexRecord: %v", err)
		}
	}

	resp, err := c.Search(ctx, &Request{
		Query:    `"install and update" AND field:product:firefox`,
		DocTypes: []string{"wiki"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "1" {
		t.Fatalf("expected only the firefox article, got %+v", resp.Results)
	}
}

func TestClient_DeleteAndStatuses(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()

	rec := map[string]any{
		"id": "1", "locale": "en-US", "slug": "doomed",
		"title": "Doomed", "content": "Goes away.",
	}
	if err := c.IndexRecord(ctx, "wiki", rec); err != nil {
		t.Fatalf("IndexRecord: %v", err)
	}
	if err := c.Delete(ctx, "wiki", "1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	statuses, err := c.Statuses(ctx)
	if err != nil {
		t.Fatalf("Statuses: %v", err)
	}
	for _, st := range statuses {
		if st.DocType == "wiki" && st.Docs != 0 {
			t.Fatalf("expected empty wiki index, got %+v", st)
		}
	}
}

func TestClient_MigrationFlow(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()

	name, err := c.MigrateWrites(ctx, "wiki")
	if err != nil {
		t.Fatalf("MigrateWrites: %v", err)
	}
	if !strings.HasPrefix(name, "wiki_") {
		t.Fatalf("unexpected physical index name %q", name)
	}

	read, err := c.MigrateReads(ctx, "wiki")
	if err != nil {
		t.Fatalf("MigrateReads: %v", err)
	}
	if read != name {
		t.Fatalf("reads landed on %q, want %q", read, name)
	}

	if _, err := c.MigrateWrites(ctx, "nope"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestClient_IndexWithoutSource(t *testing.T) {
	c := openTestClient(t)

	if err := c.Index(context.Background(), "wiki", "1"); err == nil {
		t.Fatal("expected error without a record source")
	}
}
