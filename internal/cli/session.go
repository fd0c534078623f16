package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Ko-stant/room-layout-sync/internal/config"
	"github.com/Ko-stant/room-layout-sync/internal/crdt"
	"github.com/Ko-stant/room-layout-sync/internal/geometry"
	"github.com/Ko-stant/room-layout-sync/internal/session"
	"github.com/Ko-stant/room-layout-sync/internal/snap"
	"github.com/Ko-stant/room-layout-sync/internal/transform"
)

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "http://localhost:8080", "Relay base URL")
	cmd.Flags().String("project", "", "Project id")
	cmd.Flags().String("user", "", "User id (random if empty)")
	cmd.Flags().String("name", "", "Display name")
	_ = cmd.MarkFlagRequired("project")
}

// openSession builds a session for the command's flags. Every session gets a
// fresh replica id so two roomctl runs as the same user never share one.
func openSession(cmd *cobra.Command) (*session.Session, error) {
	base, _ := cmd.Flags().GetString("url")
	project, _ := cmd.Flags().GetString("project")
	user, _ := cmd.Flags().GetString("user")
	name, _ := cmd.Flags().GetString("name")
	if user == "" {
		user = uuid.NewString()
	}

	url, err := session.StreamURL(base, project, user, name)
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	doc := crdt.NewDocument(uuid.NewString())
	return session.New(doc, session.WebSocketDialer{URL: url, ReadLimit: cfg.ReadLimit}, session.Options{
		UserID:           user,
		Name:             name,
		Logger:           log.New(cmd.ErrOrStderr(), "session: ", log.LstdFlags),
		PresenceInterval: cfg.PresenceInterval,
		PresenceWindow:   cfg.PresenceWindow,
	}), nil
}

func describeItem(it crdt.FurnitureItem) string {
	return fmt.Sprintf("%s (%s) at %.2f, %.2f rot %.2f", it.ID, it.Type, it.Position.X, it.Position.Z, it.Rotation.Y)
}

// WatchCmd joins a project and prints furniture and presence changes.
func WatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a project and print changes as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			watch(s, out)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			err = s.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	addSessionFlags(cmd)
	return cmd
}

func watch(s *session.Session, out io.Writer) {
	doc := s.Document()
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	presence := color.New(color.FgCyan)

	s.OnState(func(st session.State) {
		fmt.Fprintf(out, "%s %s\n", color.New(color.FgYellow).Sprint("state"), st)
	})
	doc.Observe(func(ev crdt.Event) {
		for _, id := range ev.Items {
			if it, ok := doc.Item(id); ok {
				fmt.Fprintf(out, "%s %s\n", added.Sprint("~"), describeItem(it))
			} else {
				fmt.Fprintf(out, "%s %s\n", removed.Sprint("-"), id)
			}
		}
	})
	s.Presence().OnChange(func() {
		for _, e := range s.Presence().Entries() {
			line := e.UserID
			if e.Name != "" {
				line = e.Name
			}
			if e.Cursor != nil {
				line += fmt.Sprintf(" cursor %.2f, %.2f", e.Cursor.X, e.Cursor.Z)
			}
			if e.Selection != "" {
				line += " selected " + e.Selection
			}
			fmt.Fprintf(out, "%s %s\n", presence.Sprint("@"), line)
		}
	})
}

// PlaceCmd joins a project, adds one item and exits once the relay has it.
func PlaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Add a furniture item to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			typeID, _ := cmd.Flags().GetString("type")
			x, _ := cmd.Flags().GetFloat64("x")
			z, _ := cmd.Flags().GetFloat64("z")
			catalogDir, _ := cmd.Flags().GetString("catalog")
			roomFile, _ := cmd.Flags().GetString("room")
			grid, _ := cmd.Flags().GetFloat64("grid")
			threshold, _ := cmd.Flags().GetFloat64("wall-threshold")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			catalog, err := loadCatalog(cmd, catalogDir)
			if err != nil {
				return err
			}
			item, err := catalog.NewItem(typeID, geometry.Vec3{X: x, Z: z})
			if err != nil {
				return err
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			runDone := make(chan struct{})
			go func() {
				_ = s.Run(ctx)
				close(runDone)
			}()
			defer func() {
				cancel()
				<-runDone
			}()

			if err := s.WaitLive(ctx); err != nil {
				return fmt.Errorf("join project: %w", err)
			}
			doc := s.Document()
			if err := doc.AddItem(item); err != nil {
				return err
			}

			var overlaps []string
			if roomFile != "" {
				def, err := geometry.LoadRoomFromFile(roomFile)
				if err != nil {
					return err
				}
				m := transform.NewManager(doc, snap.NewPipeline(def.Room, grid, threshold), transform.Settings{Snapping: true})
				for _, g := range []transform.Gesture{
					{Item: item.ID, Kind: transform.Start, Mode: transform.Translate},
					{Item: item.ID, Kind: transform.Update, Position: item.Position},
					{Item: item.ID, Kind: transform.End},
				} {
					res, err := m.Handle(g)
					if err != nil {
						return fmt.Errorf("snap into room: %w", err)
					}
					if res.Committed {
						overlaps = res.Overlaps
					}
				}
			}

			if err := s.Close(ctx); err != nil {
				return fmt.Errorf("sync: %w", err)
			}

			placed, _ := doc.Item(item.ID)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", color.New(color.FgGreen).Sprint("placed"), describeItem(placed))
			for _, id := range overlaps {
				fmt.Fprintf(out, "%s overlaps %s\n", color.New(color.FgYellow).Sprint("warning"), id)
			}
			return nil
		},
	}
	addSessionFlags(cmd)
	defaults := config.Default()
	cmd.Flags().String("type", "", "Furniture type id")
	cmd.Flags().Float64("x", 0, "X position in meters from the room center")
	cmd.Flags().Float64("z", 0, "Z position in meters from the room center")
	cmd.Flags().String("catalog", "content/furniture", "Furniture definition directory")
	cmd.Flags().String("room", "", "Room file to snap and clamp the item into")
	cmd.Flags().Float64("grid", defaults.GridSize, "Grid size in meters")
	cmd.Flags().Float64("wall-threshold", defaults.WallThreshold, "Wall snap distance in meters")
	cmd.Flags().Duration("timeout", 10*time.Second, "Give up if the relay does not answer in time")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
