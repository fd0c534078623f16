// Package views renders the relay's HTML status pages.
package views

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/a-h/templ"
)

type PeerRow struct {
	ID          string
	UserID      string
	Name        string
	ConnectedAt time.Time
}

type ItemRow struct {
	ID       string
	Type     string
	Category string
	Color    string
	X, Y, Z  float64
	RotY     float64
}

type ProjectView struct {
	ID          string
	Peers       []PeerRow
	Items       []ItemRow
	StateVector map[string]uint64
}

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem;color:#222}` +
	`table{border-collapse:collapse;margin-bottom:1.5rem}` +
	`th,td{border:1px solid #ccc;padding:.3rem .6rem;text-align:left}` +
	`.swatch{display:inline-block;width:1em;height:1em;border:1px solid #888;vertical-align:middle}`

func page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body>",
			templ.EscapeString(title), pageStyle); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

// IndexPage lists known projects.
func IndexPage(projects []string) templ.Component {
	return page("Room layout relay", templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<h1>Projects</h1>"); err != nil {
			return err
		}
		if len(projects) == 0 {
			_, err := io.WriteString(w, "<p>No projects yet.</p>")
			return err
		}
		if _, err := io.WriteString(w, "<ul>"); err != nil {
			return err
		}
		for _, id := range projects {
			esc := templ.EscapeString(id)
			if _, err := fmt.Fprintf(w, "<li><a href=\"/projects/%s\">%s</a></li>", esc, esc); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</ul>")
		return err
	}))
}

// ProjectPage shows who is connected to a project and what it contains.
func ProjectPage(v ProjectView) templ.Component {
	return page("Project "+v.ID, templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var err error
		write := func(format string, args ...any) {
			if err == nil {
				_, err = fmt.Fprintf(w, format, args...)
			}
		}

		write("<h1>Project %s</h1>", templ.EscapeString(v.ID))

		write("<h2>Peers (%d)</h2>", len(v.Peers))
		write("<table><tr><th>User</th><th>Name</th><th>Connected</th></tr>")
		for _, p := range v.Peers {
			write("<tr><td>%s</td><td>%s</td><td>%s</td></tr>",
				templ.EscapeString(p.UserID), templ.EscapeString(p.Name), p.ConnectedAt.Format(time.RFC3339))
		}
		write("</table>")

		write("<h2>Furniture (%d)</h2>", len(v.Items))
		write("<table><tr><th>ID</th><th>Type</th><th>Category</th><th>Position (m)</th><th>Rotation Y</th><th>Color</th></tr>")
		for _, it := range v.Items {
			color := templ.EscapeString(it.Color)
			write("<tr><td>%s</td><td>%s</td><td>%s</td><td>%.2f, %.2f, %.2f</td><td>%.3f</td><td><span class=\"swatch\" style=\"background:%s\"></span> %s</td></tr>",
				templ.EscapeString(it.ID), templ.EscapeString(it.Type), templ.EscapeString(it.Category),
				it.X, it.Y, it.Z, it.RotY, color, color)
		}
		write("</table>")

		peers := make([]string, 0, len(v.StateVector))
		for peer := range v.StateVector {
			peers = append(peers, peer)
		}
		sort.Strings(peers)
		write("<h2>State vector</h2><table><tr><th>Peer</th><th>Seq</th></tr>")
		for _, peer := range peers {
			write("<tr><td>%s</td><td>%d</td></tr>", templ.EscapeString(peer), v.StateVector[peer])
		}
		write("</table>")
		return err
	}))
}
