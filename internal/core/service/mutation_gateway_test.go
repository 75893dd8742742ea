package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type write struct {
	op         string
	collection string
	id         string
	fields     ports.Fields
}

type stubWriter struct {
	writes []write
	err    error
}

func (w *stubWriter) Insert(_ context.Context, collection string, fields ports.Fields) (string, error) {
	w.writes = append(w.writes, write{op: "insert", collection: collection, fields: fields})
	return "new-id", w.err
}

func (w *stubWriter) Update(_ context.Context, collection, id string, fields ports.Fields) error {
	w.writes = append(w.writes, write{op: "update", collection: collection, id: id, fields: fields})
	return w.err
}

func (w *stubWriter) Delete(_ context.Context, collection, id string) error {
	w.writes = append(w.writes, write{op: "delete", collection: collection, id: id})
	return w.err
}

type stubSession struct {
	identity *domain.AppIdentity
	platform domain.PlatformIdentity
}

func (s stubSession) Identity() (domain.AppIdentity, bool) {
	if s.identity == nil {
		return domain.AppIdentity{}, false
	}
	return *s.identity, true
}

func (s stubSession) PlatformIdentity() domain.PlatformIdentity { return s.platform }

type stubClients map[string]domain.Client

func (c stubClients) Client(id string) (domain.Client, bool) {
	cl, ok := c[id]
	return cl, ok
}

func loggedIn() stubSession {
	return stubSession{
		identity: &domain.AppIdentity{Name: "Ana Torres", Username: "ana", Role: domain.RoleStaff},
		platform: domain.PlatformIdentity{ID: "platform-1"},
	}
}

func newTestGateway(w *stubWriter, s stubSession, c stubClients) *MutationGateway {
	g := NewMutationGateway(w, s, c, zerolog.Nop())
	g.now = func() time.Time { return time.Date(2026, 4, 30, 18, 0, 0, 0, time.UTC) }
	return g
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMutationGateway_RequiresLogin(t *testing.T) {
	w := &stubWriter{}
	g := newTestGateway(w, stubSession{}, stubClients{})
	ctx := context.Background()

	errs := []error{
		g.AddClient(ctx, ports.ClientForm{Name: "Acme", TaxID: "1"}),
		g.AddWorkLogEntry(ctx, ports.WorkLogForm{ClientName: "Acme", Description: "x"}),
		g.MarkDeclared(ctx, "c1"),
		g.DeleteRecord(ctx, domain.ScopeClients, "c1"),
	}
	for i, err := range errs {
		if !errors.Is(err, domain.ErrNotLoggedIn) {
			t.Errorf("op %d: expected ErrNotLoggedIn, got %v", i, err)
		}
	}
	if len(w.writes) != 0 {
		t.Fatalf("expected no writes, got %d", len(w.writes))
	}
}

func TestMutationGateway_AddClient(t *testing.T) {
	w := &stubWriter{}
	g := newTestGateway(w, loggedIn(), stubClients{})

	err := g.AddClient(context.Background(), ports.ClientForm{
		Name: " Acme SAC ", TaxID: "20100066605", MonthlyFee: decimal.RequireFromString("350.50"), Sector: "retail",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(w.writes))
	}
	got := w.writes[0]
	if got.op != "insert" || got.collection != domain.CollectionClients {
		t.Fatalf("unexpected write %+v", got)
	}
	if got.fields["status"] != string(domain.StatusPending) {
		t.Errorf("expected status pending, got %v", got.fields["status"])
	}
	if got.fields["name"] != "Acme SAC" {
		t.Errorf("expected trimmed name, got %q", got.fields["name"])
	}
	if _, ok := got.fields["created_at"]; ok {
		t.Error("creation time must be assigned by the remote")
	}
}

func TestMutationGateway_AddClient_BlankFieldsSkip(t *testing.T) {
	cases := []ports.ClientForm{
		{Name: "", TaxID: "20100066605"},
		{Name: "Acme", TaxID: "   "},
	}
	for _, form := range cases {
		w := &stubWriter{}
		g := newTestGateway(w, loggedIn(), stubClients{})
		if err := g.AddClient(context.Background(), form); err != nil {
			t.Fatalf("skip must not be an error, got %v", err)
		}
		if len(w.writes) != 0 {
			t.Fatalf("form %+v: expected no write", form)
		}
	}
}

func TestMutationGateway_AddWorkLogEntry_StampsAuthor(t *testing.T) {
	w := &stubWriter{}
	g := newTestGateway(w, loggedIn(), stubClients{})

	err := g.AddWorkLogEntry(context.Background(), ports.WorkLogForm{
		ClientName: "Acme", Hours: decimal.RequireFromString("1.5"), Description: "monthly filing",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := w.writes[0].fields
	if w.writes[0].collection != domain.CollectionReports {
		t.Fatalf("expected reports, got %s", w.writes[0].collection)
	}
	if f["author"] != "Ana Torres" || f["author_id"] != "platform-1" {
		t.Errorf("unexpected author stamp %v / %v", f["author"], f["author_id"])
	}
	if f["date"] != "2026-04-30" {
		t.Errorf("expected today's date, got %v", f["date"])
	}
}

func TestMutationGateway_AddWorkLogEntry_KeepsGivenDate(t *testing.T) {
	w := &stubWriter{}
	g := newTestGateway(w, loggedIn(), stubClients{})

	_ = g.AddWorkLogEntry(context.Background(), ports.WorkLogForm{ClientName: "Acme", Description: "x", Date: "2026-01-15"})
	if w.writes[0].fields["date"] != "2026-01-15" {
		t.Fatalf("expected given date, got %v", w.writes[0].fields["date"])
	}
}

func TestMutationGateway_AddWorkLogEntry_BlankFieldsSkip(t *testing.T) {
	w := &stubWriter{}
	g := newTestGateway(w, loggedIn(), stubClients{})

	_ = g.AddWorkLogEntry(context.Background(), ports.WorkLogForm{ClientName: "Acme"})
	_ = g.AddWorkLogEntry(context.Background(), ports.WorkLogForm{Description: "filing"})
	if len(w.writes) != 0 {
		t.Fatalf("expected no writes, got %d", len(w.writes))
	}
}

func TestMutationGateway_MarkDeclared(t *testing.T) {
	w := &stubWriter{}
	g := newTestGateway(w, loggedIn(), stubClients{
		"c1": {ID: "c1", Status: domain.StatusPending},
	})

	if err := g.MarkDeclared(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.writes) != 1 || w.writes[0].op != "update" || w.writes[0].fields["status"] != string(domain.StatusDeclared) {
		t.Fatalf("unexpected writes %+v", w.writes)
	}
}

func TestMutationGateway_MarkDeclared_AlreadyDeclaredIsNoop(t *testing.T) {
	w := &stubWriter{}
	g := newTestGateway(w, loggedIn(), stubClients{
		"c1": {ID: "c1", Status: domain.StatusDeclared},
	})

	if err := g.MarkDeclared(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.writes) != 0 {
		t.Fatal("expected no write for an already declared client")
	}
}

func TestMutationGateway_MarkDeclared_UnknownStatusRejected(t *testing.T) {
	w := &stubWriter{}
	g := newTestGateway(w, loggedIn(), stubClients{
		"c1": {ID: "c1", Status: domain.DeclarationStatus("archived")},
	})

	if err := g.MarkDeclared(context.Background(), "c1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMutationGateway_DeleteRecord(t *testing.T) {
	w := &stubWriter{}
	g := newTestGateway(w, loggedIn(), stubClients{})

	if err := g.DeleteRecord(context.Background(), domain.ScopeReports, "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.writes[0].collection != domain.CollectionReports || w.writes[0].id != "r1" {
		t.Fatalf("unexpected write %+v", w.writes[0])
	}

	if err := g.DeleteRecord(context.Background(), domain.ScopeStaff, "u1"); !errors.Is(err, domain.ErrUnknownCollection) {
		t.Fatalf("staff accounts are read-only, got %v", err)
	}
}

func TestMutationGateway_RemoteErrorWrapped(t *testing.T) {
	boom := errors.New("unavailable")
	w := &stubWriter{err: boom}
	g := newTestGateway(w, loggedIn(), stubClients{})

	err := g.AddClient(context.Background(), ports.ClientForm{Name: "Acme", TaxID: "1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped remote error, got %v", err)
	}
}
