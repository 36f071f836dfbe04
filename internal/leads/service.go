package leads

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/coastmedia-api/internal/common"
	"github.com/noah-isme/coastmedia-api/internal/events"
	"github.com/noah-isme/coastmedia-api/internal/obs"
)

// Lead is a contact-form submission.
type Lead struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Input is the body of POST /api/v1/forms/lead.
type Input struct {
	Name     string         `json:"name" validate:"max=200"`
	Email    string         `json:"email" validate:"required,email,max=320"`
	Message  string         `json:"message" validate:"max=5000"`
	Metadata map[string]any `json:"metadata" validate:"max=50"`
}

// Pageview is the body of POST /api/v1/events/pageview.
type Pageview struct {
	Path     string `json:"path" validate:"required,startswith=/,max=2048"`
	Referrer string `json:"referrer" validate:"max=2048"`
}

// Service records leads and pageviews.
type Service struct {
	store    Store
	events   events.Emitter
	validate *validator.Validate
	logger   zerolog.Logger
	newID    func() string
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store  Store
	Events events.Emitter
	Logger zerolog.Logger
}

// NewService constructs a leads Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("leads: store is required")
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return &Service{store: cfg.Store, events: cfg.Events, validate: v, logger: cfg.Logger, newID: uuid.NewString}, nil
}

// Submit validates and stores a lead, then emits lead.received.
func (s *Service) Submit(ctx context.Context, in Input) (Lead, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Message = strings.TrimSpace(in.Message)
	if err := s.check(in); err != nil {
		obs.Inc(obs.LeadSubmissionsTotal, "invalid")
		return Lead{}, err
	}
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}
	lead, err := s.store.Insert(ctx, Lead{
		ID:       s.newID(),
		Name:     in.Name,
		Email:    in.Email,
		Message:  in.Message,
		Metadata: in.Metadata,
	})
	if err != nil {
		obs.Inc(obs.LeadSubmissionsTotal, "error")
		return Lead{}, err
	}
	obs.Inc(obs.LeadSubmissionsTotal, "ok")
	if s.events != nil {
		if _, err := s.events.Emit(ctx, events.TopicLeadReceived, lead.ID, map[string]any{
			"lead_id": lead.ID,
			"name":    lead.Name,
			"email":   lead.Email,
			"message": lead.Message,
		}); err != nil {
			s.logger.Warn().Err(err).Str("lead_id", lead.ID).Msg("emit lead.received")
		}
	}
	return lead, nil
}

// RecordPageview stores a pageview event.
func (s *Service) RecordPageview(ctx context.Context, pv Pageview, userAgent string) error {
	pv.Path = strings.TrimSpace(pv.Path)
	pv.Referrer = strings.TrimSpace(pv.Referrer)
	if err := s.check(pv); err != nil {
		return err
	}
	if s.events == nil {
		return nil
	}
	_, err := s.events.Emit(ctx, events.TopicPageview, "", map[string]any{
		"path":       pv.Path,
		"referrer":   pv.Referrer,
		"user_agent": userAgent,
	})
	return err
}

// List returns recent leads.
func (s *Service) List(ctx context.Context, limit int) ([]Lead, error) {
	return s.store.List(ctx, limit)
}

func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return common.BadRequest("", "invalid payload", err)
	}
	fe := verrs[0]
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "email":
		msg = "A valid email is required"
	case "max":
		msg = fmt.Sprintf("%s is too long", field)
	case "startswith":
		msg = fmt.Sprintf("%s must start with /", field)
	default:
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return common.BadRequest(field, msg, err)
}
