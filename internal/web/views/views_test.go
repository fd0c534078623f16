package views

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestProjectPage_EscapesUserContent(t *testing.T) {
	var b strings.Builder
	v := ProjectView{
		ID:          "kitchen",
		Peers:       []PeerRow{{ID: "c1", UserID: "<script>", Name: "Eve", ConnectedAt: time.Unix(0, 0).UTC()}},
		Items:       []ItemRow{{ID: "sofa-1", Type: "sofa", Color: `red" onmouseover="x`, X: 1.25}},
		StateVector: map[string]uint64{"bob": 2, "alice": 5},
	}
	if err := ProjectPage(v).Render(context.Background(), &b); err != nil {
		t.Fatalf("Failed to render: %v", err)
	}
	out := b.String()

	if strings.Contains(out, "<script>") {
		t.Error("Expected user id to be escaped")
	}
	if strings.Contains(out, `onmouseover="x`) {
		t.Error("Expected color to be escaped")
	}
	if !strings.Contains(out, "1.25, 0.00, 0.00") {
		t.Error("Expected item position in meters")
	}
	if strings.Index(out, "alice") > strings.Index(out, "bob") {
		t.Error("Expected state vector sorted by peer")
	}
}

func TestIndexPage(t *testing.T) {
	var b strings.Builder
	if err := IndexPage(nil).Render(context.Background(), &b); err != nil {
		t.Fatalf("Failed to render: %v", err)
	}
	if !strings.Contains(b.String(), "No projects yet") {
		t.Error("Expected empty state message")
	}

	b.Reset()
	_ = IndexPage([]string{"den"}).Render(context.Background(), &b)
	if !strings.Contains(b.String(), `<a href="/projects/den">den</a>`) {
		t.Errorf("Expected link to den, got %s", b.String())
	}
}
