package server

import (
	"fmt"
	"net/http"
	"strconv"

	g "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/guestkiosk/guestkiosk/pkg/store"
)

func (s *Server) handleAdminPage(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Store.GetAllEntries(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	count, err := s.Store.CountEntries(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = adminPage(entries, count).Render(w)
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.Store.DeleteEntry(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func adminPage(entries []store.Entry, count int64) g.Node {
	return HTML(Lang("en"),
		Head(
			TitleEl(g.Text("Guestbook admin")),
			Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
			StyleEl(g.Raw(adminCSS)),
		),
		Body(
			H1(g.Text("Guestbook entries")),
			P(Class("count"), g.Textf("%d entries", count)),
			Div(Class("entries"), g.Map(entries, entryCard)),
		),
	)
}

func entryCard(e store.Entry) g.Node {
	name := e.Name
	if name == "" {
		name = "(anonymous)"
	}
	return Div(Class("card"),
		g.If(e.Photo != "", Img(Class("photo"), Src(e.Photo), Alt("visitor photo"))),
		Img(Class("signature"), Src(e.Signature), Alt("signature")),
		Div(Class("meta"),
			Strong(g.Text(name)),
			g.If(e.Designation != "", Span(g.Text(" — "+e.Designation))),
			Br(),
			Span(Class("ts"), g.Text(e.Timestamp.Format("2006-01-02 15:04"))),
		),
		FormEl(Method("post"), Action("/admin/delete"),
			Input(Type("hidden"), Name("id"), Value(fmt.Sprintf("%d", e.ID))),
			Button(Type("submit"), Class("delete"), g.Text("Delete")),
		),
	)
}

const adminCSS = `
body { font-family: sans-serif; margin: 2rem; background: #f4f4f5; }
h1 { margin-bottom: 0; }
.count { color: #71717a; margin-top: 0.25rem; }
.entries { display: flex; flex-wrap: wrap; gap: 1rem; }
.card { background: #fff; border: 1px solid #e4e4e7; border-radius: 8px; padding: 1rem; width: 260px; }
.card img { max-width: 100%; border: 1px solid #e4e4e7; border-radius: 4px; }
.card .meta { margin: 0.5rem 0; }
.card .ts { color: #71717a; font-size: 0.85rem; }
.card .delete { background: #dc2626; color: #fff; border: 0; border-radius: 4px; padding: 0.35rem 0.75rem; cursor: pointer; }
`
