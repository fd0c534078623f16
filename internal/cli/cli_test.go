package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Ko-stant/room-layout-sync/internal/geometry"
	"github.com/Ko-stant/room-layout-sync/internal/relay"
	"github.com/Ko-stant/room-layout-sync/internal/store"
)

const (
	livingRoom   = "../../content/rooms/living-room.yaml"
	furnitureDir = "../../content/furniture"
)

func init() {
	color.NoColor = true
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestShellCmd_Table(t *testing.T) {
	out, err := run(t, ShellCmd(), livingRoom)
	if err != nil {
		t.Fatalf("Failed to run shell: %v", err)
	}
	if !strings.Contains(out, "Living room: 4.00 x 3.00 x 2.80 m, 2 openings") {
		t.Errorf("Expected room summary, got:\n%s", out)
	}
	if !strings.Contains(out, "lintel") || !strings.Contains(out, "sill") {
		t.Errorf("Expected lintel and sill segments, got:\n%s", out)
	}
}

func TestShellCmd_JSONWithoutCeiling(t *testing.T) {
	out, err := run(t, ShellCmd(), livingRoom, "--json", "--no-ceiling")
	if err != nil {
		t.Fatalf("Failed to run shell: %v", err)
	}
	var shell geometry.ShellDescription
	if err := json.Unmarshal([]byte(out), &shell); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	if shell.Ceiling != nil {
		t.Error("Expected no ceiling")
	}
	// North and south each have one opening (before, lintel, [sill], after);
	// east and west are full walls.
	if len(shell.SegmentsForWall(geometry.East)) != 1 || len(shell.SegmentsForWall(geometry.West)) != 1 {
		t.Errorf("Expected full east and west walls, got %d segments total", len(shell.Walls))
	}
}

func TestValidateCmd(t *testing.T) {
	out, err := run(t, ValidateCmd(), livingRoom)
	if err != nil {
		t.Fatalf("Expected living room to validate: %v", err)
	}
	if !strings.HasPrefix(out, "OK living-room") {
		t.Errorf("Expected OK line, got %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	data := `id: bad
room: {length: 2000, width: 2000, height: 2500}
openings:
  - {wall: east, offset: 100, width: 800, height: 2000, sill: 0}
  - {wall: east, offset: 500, width: 800, height: 2000, sill: 0}
`
	if err := os.WriteFile(bad, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, ValidateCmd(), bad)
	if err == nil {
		t.Fatal("Expected overlapping openings to fail validation")
	}
	if !strings.HasPrefix(out, "INVALID") {
		t.Errorf("Expected INVALID line, got %q", out)
	}
}

func TestCatalogCmd(t *testing.T) {
	out, err := run(t, CatalogCmd(), furnitureDir)
	if err != nil {
		t.Fatalf("Failed to run catalog: %v", err)
	}
	for _, id := range []string{"sofa", "chair", "double-bed", "coffee-table"} {
		if !strings.Contains(out, id) {
			t.Errorf("Expected %s in catalog listing", id)
		}
	}
	if !strings.Contains(out, "2.00 x 0.80 x 0.90") {
		t.Errorf("Expected sofa full size, got:\n%s", out)
	}

	out, err = run(t, CatalogCmd(), t.TempDir())
	if err != nil || !strings.Contains(out, "no furniture definitions found") {
		t.Errorf("Expected empty catalog message, got %q (%v)", out, err)
	}
}

func TestPlaceCmd_SnapsAndSyncs(t *testing.T) {
	rel := relay.New(store.NewMemory(), nopLogger{}, relay.Options{})
	srv := httptest.NewServer(rel.Router())
	defer srv.Close()

	out, err := run(t, PlaceCmd(),
		"--url", srv.URL, "--project", "den", "--user", "alice",
		"--type", "chair", "--x", "1.23", "--z", "-0.48",
		"--catalog", furnitureDir, "--room", livingRoom, "--timeout", "5s")
	if err != nil {
		t.Fatalf("Failed to place: %v", err)
	}
	if !strings.HasPrefix(out, "placed chair-") {
		t.Errorf("Expected placed line, got %q", out)
	}

	room, err := rel.Room(context.Background(), "den")
	if err != nil {
		t.Fatalf("Failed to open room: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(room.Document().Items()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	items := room.Document().Items()
	if len(items) != 1 {
		t.Fatalf("Expected relay to hold 1 item, got %d", len(items))
	}
	got := items[0]
	if got.Type != "chair" || math.Abs(got.Position.X-1.2) > 1e-9 || math.Abs(got.Position.Z+0.5) > 1e-9 {
		t.Errorf("Expected chair snapped to 1.2, -0.5, got %+v", got.Position)
	}
	if got.Position.Y != 0.45 {
		t.Errorf("Expected chair standing on the floor, got y=%v", got.Position.Y)
	}
}

func TestPlaceCmd_UnknownType(t *testing.T) {
	_, err := run(t, PlaceCmd(), "--project", "den", "--type", "piano", "--catalog", furnitureDir)
	if err == nil || !strings.Contains(err.Error(), "piano") {
		t.Errorf("Expected unknown type error, got %v", err)
	}
}
