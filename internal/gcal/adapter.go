package gcal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/clinicflow/schedcore/pkg/logging"
)

// EventInput describes a calendar event to create.
type EventInput struct {
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	AttendeeEmail string
	Busy          bool
}

// EventPatch carries the fields of a partial event update. Nil fields are
// left untouched.
type EventPatch struct {
	Summary *string
	Start   *time.Time
	End     *time.Time
	Busy    *bool
}

// Event is the adapter's view of an external calendar event.
type Event struct {
	ID        string
	Status    string // confirmed, tentative, cancelled
	Summary   string
	Start     time.Time
	End       time.Time
	Updated   time.Time
	AllDay    bool
	Organizer string
}

// Channel is the result of registering a push notification watch.
type Channel struct {
	ChannelID  string
	ResourceID string
	Expiration time.Time
}

// Adapter wraps the Google Calendar API for one deployment. Per-provider
// OAuth tokens come from the CredentialStore; the primary calendar of the
// connected account is used.
type Adapter struct {
	creds   *CredentialStore
	oauth   *oauth2.Config
	timeout time.Duration
	logger  *logging.Logger

	// newService is swappable in tests.
	newService func(ctx context.Context, ts oauth2.TokenSource) (*calendar.Service, error)
}

// NewAdapter creates a calendar adapter.
func NewAdapter(creds *CredentialStore, oauthCfg *oauth2.Config, timeout time.Duration, logger *logging.Logger) *Adapter {
	if creds == nil {
		panic("gcal: credential store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		creds:   creds,
		oauth:   oauthCfg,
		timeout: timeout,
		logger:  logger,
		newService: func(ctx context.Context, ts oauth2.TokenSource) (*calendar.Service, error) {
			return calendar.NewService(ctx, option.WithTokenSource(ts))
		},
	}
}

// CreateEvent mirrors a booking into the provider's calendar and returns
// the external event id.
func (a *Adapter) CreateEvent(ctx context.Context, providerID uuid.UUID, in EventInput) (string, error) {
	ev := &calendar.Event{
		Summary:      in.Summary,
		Description:  in.Description,
		Start:        &calendar.EventDateTime{DateTime: in.Start.Format(time.RFC3339)},
		End:          &calendar.EventDateTime{DateTime: in.End.Format(time.RFC3339)},
		Transparency: transparency(in.Busy),
	}
	if in.AttendeeEmail != "" {
		ev.Attendees = []*calendar.EventAttendee{{Email: in.AttendeeEmail}}
	}

	var created *calendar.Event
	err := a.do(ctx, providerID, func(ctx context.Context, svc *calendar.Service) error {
		var err error
		created, err = svc.Events.Insert("primary", ev).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

// PatchEvent applies a partial update to an event.
func (a *Adapter) PatchEvent(ctx context.Context, providerID uuid.UUID, eventID string, patch EventPatch) error {
	ev := &calendar.Event{}
	if patch.Summary != nil {
		ev.Summary = *patch.Summary
	}
	if patch.Start != nil {
		ev.Start = &calendar.EventDateTime{DateTime: patch.Start.Format(time.RFC3339)}
	}
	if patch.End != nil {
		ev.End = &calendar.EventDateTime{DateTime: patch.End.Format(time.RFC3339)}
	}
	if patch.Busy != nil {
		ev.Transparency = transparency(*patch.Busy)
		// "opaque" is the API default and gets dropped from the patch body
		// unless forced.
		ev.ForceSendFields = append(ev.ForceSendFields, "Transparency")
	}
	return a.do(ctx, providerID, func(ctx context.Context, svc *calendar.Service) error {
		_, err := svc.Events.Patch("primary", eventID, ev).Context(ctx).Do()
		return err
	})
}

// DeleteEvent removes a mirrored event. A 404/410 from the API is treated
// as success: the event is already gone.
func (a *Adapter) DeleteEvent(ctx context.Context, providerID uuid.UUID, eventID string) error {
	err := a.do(ctx, providerID, func(ctx context.Context, svc *calendar.Service) error {
		return svc.Events.Delete("primary", eventID).Context(ctx).Do()
	})
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == 404 || gerr.Code == 410) {
		return nil
	}
	return err
}

// ListEventsSince returns events updated since the given time, cancelled
// ones included so reconciliation can release their slots.
func (a *Adapter) ListEventsSince(ctx context.Context, providerID uuid.UUID, since time.Time) ([]Event, error) {
	var out []Event
	err := a.do(ctx, providerID, func(ctx context.Context, svc *calendar.Service) error {
		out = out[:0]
		call := svc.Events.List("primary").
			UpdatedMin(since.Format(time.RFC3339)).
			ShowDeleted(true).
			SingleEvents(true).
			OrderBy("updated").
			Context(ctx)
		return call.Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				out = append(out, fromAPIEvent(item))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Watch registers a push notification channel for the provider's calendar.
func (a *Adapter) Watch(ctx context.Context, providerID uuid.UUID, channelID, callbackURL, token string, ttl time.Duration) (*Channel, error) {
	req := &calendar.Channel{
		Id:      channelID,
		Type:    "web_hook",
		Address: callbackURL,
		Token:   token,
		Params:  map[string]string{"ttl": fmt.Sprintf("%d", int(ttl.Seconds()))},
	}
	var ch *calendar.Channel
	err := a.do(ctx, providerID, func(ctx context.Context, svc *calendar.Service) error {
		var err error
		ch, err = svc.Events.Watch("primary", req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Channel{
		ChannelID:  ch.Id,
		ResourceID: ch.ResourceId,
		Expiration: time.UnixMilli(ch.Expiration).UTC(),
	}, nil
}

// StopChannel tears down a push notification channel. Unknown channels
// are treated as already stopped.
func (a *Adapter) StopChannel(ctx context.Context, providerID uuid.UUID, channelID, resourceID string) error {
	err := a.do(ctx, providerID, func(ctx context.Context, svc *calendar.Service) error {
		return svc.Channels.Stop(&calendar.Channel{Id: channelID, ResourceId: resourceID}).Context(ctx).Do()
	})
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 404 {
		return nil
	}
	return err
}

// RefreshCredentials forces a token refresh and persists the result.
func (a *Adapter) RefreshCredentials(ctx context.Context, providerID uuid.UUID) error {
	tok, err := a.creds.Get(ctx, providerID)
	if err != nil {
		return err
	}
	if a.oauth == nil {
		return fmt.Errorf("gcal: oauth config not set")
	}
	// Expire the access token so the source is forced to refresh.
	tok.Expiry = time.Now().Add(-time.Minute)
	fresh, err := a.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialsExpired, err)
	}
	return a.creds.Save(ctx, providerID, fresh)
}

// do runs one API call with the provider's credentials and the configured
// timeout. A 401 triggers a single refresh-and-retry before surfacing
// ErrCredentialsExpired.
func (a *Adapter) do(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, svc *calendar.Service) error) error {
	err := a.doOnce(ctx, providerID, fn)
	if errors.Is(err, ErrCredentialsExpired) {
		a.logger.Info("calendar credentials rejected, refreshing", "provider_id", providerID)
		if rerr := a.RefreshCredentials(ctx, providerID); rerr != nil {
			return rerr
		}
		return a.doOnce(ctx, providerID, fn)
	}
	return err
}

func (a *Adapter) doOnce(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context, svc *calendar.Service) error) error {
	tok, err := a.creds.Get(ctx, providerID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var ts oauth2.TokenSource
	if a.oauth != nil {
		ts = a.oauth.TokenSource(ctx, tok)
	} else {
		ts = oauth2.StaticTokenSource(tok)
	}

	svc, err := a.newService(ctx, ts)
	if err != nil {
		return fmt.Errorf("gcal: build service: %w", err)
	}
	return classifyError(fn(ctx, svc))
}

// classifyError maps transport and API failures onto the adapter's error
// taxonomy.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return fmt.Errorf("%w: %v", ErrCredentialsExpired, err)
		case gerr.Code >= 500:
			return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return err
	}
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &nerr) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return err
}

func transparency(busy bool) string {
	if busy {
		return "opaque"
	}
	return "transparent"
}

func fromAPIEvent(item *calendar.Event) Event {
	ev := Event{
		ID:      item.Id,
		Status:  item.Status,
		Summary: item.Summary,
	}
	if item.Updated != "" {
		if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			ev.Updated = t
		}
	}
	if item.Organizer != nil {
		ev.Organizer = item.Organizer.Email
	}
	if item.Start != nil {
		if item.Start.DateTime != "" {
			if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
				ev.Start = t
			}
		} else if item.Start.Date != "" {
			if t, err := time.Parse(time.DateOnly, item.Start.Date); err == nil {
				ev.Start = t
				ev.AllDay = true
			}
		}
	}
	if item.End != nil {
		if item.End.DateTime != "" {
			if t, err := time.Parse(time.RFC3339, item.End.DateTime); err == nil {
				ev.End = t
			}
		} else if item.End.Date != "" {
			if t, err := time.Parse(time.DateOnly, item.End.Date); err == nil {
				ev.End = t
			}
		}
	}
	return ev
}
