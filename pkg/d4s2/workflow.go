package d4s2

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/duke-gcb/ddsclient/pkg/config"
	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/remotestore"
	"github.com/duke-gcb/ddsclient/pkg/transfer"
)

// DefaultShareRole is the permission granted to share recipients when the
// user doesn't pick one.
const DefaultShareRole = "file_downloader"

// Status classifies how a submission ended.
type Status int

const (
	// StatusOk means the recipient was notified.
	StatusOk Status = iota

	// StatusWarning means nothing was sent but the situation is benign,
	// such as a share that already went out.
	StatusWarning

	// StatusFatal means the submission failed.
	StatusFatal
)

// Outcome is the result of submitting a share or delivery. Message is
// suitable for showing the user; Err is set only for StatusFatal.
type Outcome struct {
	Status  Status
	Message string
	Err     error
}

func okOutcome(format string, args ...interface{}) Outcome {
	return Outcome{Status: StatusOk, Message: fmt.Sprintf(format, args...)}
}

func warningOutcome(format string, args ...interface{}) Outcome {
	return Outcome{Status: StatusWarning, Message: fmt.Sprintf(format, args...)}
}

func fatalOutcome(err error) Outcome {
	return Outcome{Status: StatusFatal, Message: errors.GetPrintableMessage(err), Err: err}
}

// Request describes one share or delivery to submit.
type Request struct {
	Destination Destination

	ProjectName string

	// Exactly one of Email and Username identifies the recipient.
	Email    string
	Username string

	// AuthRole applies to shares only.
	AuthRole string

	UserMessage string

	// Resend pushes the notification again for an item that already went
	// out.
	Resend bool

	// Copy delivers a point-in-time copy of the project instead of the
	// project itself.
	Copy bool

	// ShareUsernames lists additional users who get shared access seeded
	// when the recipient accepts. Deliveries only.
	ShareUsernames []string

	// IncludePaths / ExcludePaths narrow what a copy carries. At most one
	// may be set.
	IncludePaths []string
	ExcludePaths []string
}

// Workflow runs the lookup → create → send state machine against the D4S2
// service, with the data service preconditions checked up front.
type Workflow struct {
	data    *ddsapi.Client
	store   *remotestore.Store
	service *Client
	fs      afero.Fs
	options transfer.Options
	clock   clockwork.Clock
}

func NewWorkflow(cfg *config.Config, data *ddsapi.Client, appFs afero.Fs,
	options transfer.Options) *Workflow {

	return &Workflow{
		data:    data,
		store:   remotestore.New(data),
		service: NewClient(cfg, data),
		fs:      appFs,
		options: options,
		clock:   clockwork.NewRealClock(),
	}
}

// Submit shares or delivers a project. Preconditions that need no network
// round trip beyond user lookup (self-send, recipient without email) fail
// before any state is changed.
func (w *Workflow) Submit(ctx context.Context, req Request) Outcome {
	project, err := w.data.ProjectByName(ctx, req.ProjectName)
	if err != nil {
		return fatalOutcome(err)
	}
	currentUser, err := w.data.CurrentUser(ctx)
	if err != nil {
		return fatalOutcome(err)
	}
	toUser, err := w.store.LookupUser(ctx, req.Email, req.Username)
	if err != nil {
		return fatalOutcome(err)
	}

	noun := req.Destination.Noun()
	if toUser.ID == currentUser.ID {
		return fatalOutcome(errors.NewFriendlyError(
			"You cannot %s a project with yourself.", noun))
	}
	if toUser.Email == "" {
		return fatalOutcome(errors.NewFriendlyError(
			"Unable to %s with %s: the user has no email address. "+
				"We are unable to contact them to %s your project.",
			noun, displayName(toUser), noun))
	}

	var shareUserIDs []string
	if req.Destination == DestinationShare {
		role := req.AuthRole
		if role == "" {
			role = DefaultShareRole
		}
		if err := w.data.GrantPermission(ctx, project.ID, toUser.ID, role); err != nil {
			return fatalOutcome(err)
		}
	} else {
		for _, username := range req.ShareUsernames {
			shareUser, err := w.store.LookupUser(ctx, "", username)
			if err != nil {
				return fatalOutcome(err)
			}
			shareUserIDs = append(shareUserIDs, shareUser.ID)
		}
		// The recipient must accept the delivery through D4S2, so any
		// direct permission they hold is withdrawn first.
		if err := w.data.RevokePermission(ctx, project.ID, toUser.ID); err != nil {
			return fatalOutcome(err)
		}
		if req.Copy {
			if project, err = w.copyProject(ctx, project, req); err != nil {
				return fatalOutcome(err)
			}
		}
	}

	item, err := w.service.Find(ctx, req.Destination, project.ID, currentUser.ID, toUser.ID)
	if err != nil {
		return fatalOutcome(err)
	}

	switch {
	case item == nil:
		item, err = w.service.Create(ctx, req.Destination, Item{
			ProjectID:    project.ID,
			FromUserID:   currentUser.ID,
			ToUserID:     toUser.ID,
			Role:         req.AuthRole,
			UserMessage:  req.UserMessage,
			ShareUserIDs: shareUserIDs,
		})
		if err != nil {
			return fatalOutcome(err)
		}
		if err := w.service.Send(ctx, req.Destination, item.ID, false); err != nil {
			return fatalOutcome(err)
		}
	case req.Resend:
		if err := w.service.Send(ctx, req.Destination, item.ID, true); err != nil {
			return fatalOutcome(err)
		}
	default:
		return warningOutcome("Destination: %s, ProjectID: %s already sent. "+
			"Run with --resend argument to resend.", noun, project.ID)
	}

	return okOutcome("Sent %s email to %s.", noun, toUser.Email)
}

func displayName(user *ddsapi.User) string {
	if user.FullName != "" {
		return user.FullName
	}
	return user.Username
}
