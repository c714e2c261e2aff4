package service

import (
	"context"
	"strings"
	"time"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/attribution"
	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/ident"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/pii"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
)

// ContactRequest is a contact form submission.
type ContactRequest struct {
	EventID   string `json:"event_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	SourceURL string `json:"source_url"`
	FBP       string `json:"fbp"`
	FBC       string `json:"fbc"`
}

type ContactResult struct {
	EventID  string             `json:"event_id"`
	Tracking *types.RelayResult `json:"tracking,omitempty"`
}

type ContactService struct {
	tracker *Tracker
	hasher  pii.Hasher
	now     func() time.Time
}

func NewContactService(t *Tracker, h pii.Hasher) *ContactService {
	return &ContactService{
		tracker: t,
		hasher:  h,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit fires a Contact event for a valid submission. Tracking failures are
// reported in the result and never turn into an error.
func (s *ContactService) Submit(ctx context.Context, req ContactRequest, meta RequestMeta) (ContactResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return ContactResult{}, apperrors.NewValidationError("name", "is required")
	}
	if strings.TrimSpace(req.Email) == "" && strings.TrimSpace(req.Phone) == "" {
		return ContactResult{}, apperrors.NewValidationError("email", "email or phone is required")
	}

	id := strings.TrimSpace(req.EventID)
	if id == "" {
		id = ident.New()
	}
	now := s.now()
	attr, params := attribution.FromURL(ctx, req.SourceURL)

	contact := pii.Contact{Name: req.Name, Email: req.Email, Phone: req.Phone}
	ud := s.hasher.UserData(contact)
	ud.FBP = req.FBP
	ud.FBC = attribution.ResolveClickCookie(req.FBC, params.FBCLID, now)

	res := s.tracker.Track(ctx, types.Envelope{
		EventID:     id,
		EventTime:   now.Unix(),
		SourceURL:   req.SourceURL,
		UserData:    ud,
		Attribution: attr,
		Payload:     types.Contact{ContentName: "Contact Form"},
	}, meta, &contact)

	return ContactResult{EventID: id, Tracking: &res}, nil
}
