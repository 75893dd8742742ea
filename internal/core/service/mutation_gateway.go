package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
	"github.com/practicedesk/console/internal/infrastructure/metrics"
)

// Session is what the gateway needs to know about who is writing.
type Session interface {
	Identity() (domain.AppIdentity, bool)
	PlatformIdentity() domain.PlatformIdentity
}

// ClientLookup reads the clients mirror.
type ClientLookup interface {
	Client(id string) (domain.Client, bool)
}

// MutationGateway issues single remote writes on behalf of a logged-in user.
// It never touches the mirrors; results come back through the next snapshot.
type MutationGateway struct {
	writer  ports.Writer
	session Session
	clients ClientLookup
	log     zerolog.Logger
	now     func() time.Time
}

func NewMutationGateway(writer ports.Writer, session Session, clients ClientLookup, log zerolog.Logger) *MutationGateway {
	return &MutationGateway{
		writer:  writer,
		session: session,
		clients: clients,
		log:     log,
		now:     time.Now,
	}
}

// AddClient registers a client as pending. A form without a name or tax
// identifier is skipped without error.
func (g *MutationGateway) AddClient(ctx context.Context, form ports.ClientForm) error {
	const op = "add_client"
	if _, ok := g.session.Identity(); !ok {
		return domain.ErrNotLoggedIn
	}

	name := strings.TrimSpace(form.Name)
	taxID := strings.TrimSpace(form.TaxID)
	if name == "" || taxID == "" {
		g.skip(op, "client name and tax ID are required")
		return nil
	}

	return g.write(op, func() error {
		_, err := g.writer.Insert(ctx, domain.CollectionClients, ports.Fields{
			"name":        name,
			"ruc":         taxID,
			"monthly_fee": form.MonthlyFee,
			"sector":      strings.TrimSpace(form.Sector),
			"status":      string(domain.StatusPending),
		})
		return err
	})
}

// AddWorkLogEntry appends an entry stamped with the current author. A form
// without a description or client name is skipped without error.
func (g *MutationGateway) AddWorkLogEntry(ctx context.Context, form ports.WorkLogForm) error {
	const op = "add_worklog"
	who, ok := g.session.Identity()
	if !ok {
		return domain.ErrNotLoggedIn
	}

	clientName := strings.TrimSpace(form.ClientName)
	description := strings.TrimSpace(form.Description)
	if clientName == "" || description == "" {
		g.skip(op, "client name and description are required")
		return nil
	}

	date := strings.TrimSpace(form.Date)
	if date == "" {
		date = g.now().Format(time.DateOnly)
	}

	return g.write(op, func() error {
		_, err := g.writer.Insert(ctx, domain.CollectionReports, ports.Fields{
			"client":      clientName,
			"hours":       form.Hours,
			"description": description,
			"date":        date,
			"author":      who.Name,
			"author_id":   g.session.PlatformIdentity().ID,
		})
		return err
	})
}

// MarkDeclared moves a pending client to declared. Clients the mirror already
// shows as declared are left alone.
func (g *MutationGateway) MarkDeclared(ctx context.Context, clientID string) error {
	const op = "mark_declared"
	if _, ok := g.session.Identity(); !ok {
		return domain.ErrNotLoggedIn
	}

	if c, ok := g.clients.Client(clientID); ok {
		status := c.Status
		if status == "" {
			status = domain.StatusPending
		}
		if status == domain.StatusDeclared {
			metrics.MutationsTotal.WithLabelValues(op, "skipped").Inc()
			g.log.Debug().Str("client_id", clientID).Msg("client already declared")
			return nil
		}
		if !status.CanTransitionTo(domain.StatusDeclared) {
			metrics.MutationsTotal.WithLabelValues(op, "error").Inc()
			return fmt.Errorf("mark declared %s: %w: %s -> %s", clientID, domain.ErrInvalidTransition, status, domain.StatusDeclared)
		}
	}

	return g.write(op, func() error {
		return g.writer.Update(ctx, domain.CollectionClients, clientID, ports.Fields{
			"status": string(domain.StatusDeclared),
		})
	})
}

// DeleteRecord permanently removes a client or work-log entry. Confirmation
// is the caller's job.
func (g *MutationGateway) DeleteRecord(ctx context.Context, kind domain.Scope, id string) error {
	const op = "delete"
	if _, ok := g.session.Identity(); !ok {
		return domain.ErrNotLoggedIn
	}
	if kind != domain.ScopeClients && kind != domain.ScopeReports {
		return fmt.Errorf("delete: %w: %q", domain.ErrUnknownCollection, kind)
	}

	return g.write(op, func() error {
		return g.writer.Delete(ctx, kind.Collection(), id)
	})
}

func (g *MutationGateway) skip(op, reason string) {
	metrics.MutationsTotal.WithLabelValues(op, "skipped").Inc()
	g.log.Warn().Str("op", op).Msg("validation skip: " + reason)
}

func (g *MutationGateway) write(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.MutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.MutationsTotal.WithLabelValues(op, "error").Inc()
		g.log.Error().Err(err).Str("op", op).Msg("remote write failed")
		return fmt.Errorf("%s: %w", strings.ReplaceAll(op, "_", " "), err)
	}
	metrics.MutationsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

var _ ports.MutationGateway = (*MutationGateway)(nil)
