package share

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/duke-gcb/ddsclient/cmd/util"
	"github.com/duke-gcb/ddsclient/pkg/config"
	"github.com/duke-gcb/ddsclient/pkg/d4s2"
	"github.com/duke-gcb/ddsclient/pkg/ddsapi"
	"github.com/duke-gcb/ddsclient/pkg/errors"
	"github.com/duke-gcb/ddsclient/pkg/transfer"
)

// New creates a new `share` command.
func New() *cobra.Command {
	var projectName, email, username, authRole, message string
	var resend bool
	cmd := &cobra.Command{
		Use:   "share -p PROJECT (--email EMAIL | --user USERNAME)",
		Short: "Give another user access to a project and email them about it.",
		Run: func(_ *cobra.Command, _ []string) {
			req := d4s2.Request{
				Destination: d4s2.DestinationShare,
				ProjectName: projectName,
				Email:       email,
				Username:    username,
				AuthRole:    authRole,
				UserMessage: message,
				Resend:      resend,
			}
			if err := run(req); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVarP(&projectName, "project-name", "p", "",
		"Name of the project to share.")
	cmd.Flags().StringVar(&email, "email", "",
		"Email of the user to share with.")
	cmd.Flags().StringVar(&username, "user", "",
		"Username of the user to share with.")
	cmd.Flags().StringVar(&authRole, "auth-role", d4s2.DefaultShareRole,
		"Permission level granted to the recipient.")
	cmd.Flags().StringVar(&message, "message", "",
		"Message to include in the email sent to the recipient.")
	cmd.Flags().BoolVar(&resend, "resend", false,
		"Resend the notification email for a share that already went out.")
	return cmd
}

func run(req d4s2.Request) error {
	if err := validate(req); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.WithContext(err, "load config")
	}

	client := ddsapi.NewClient(&cfg)
	workflow := d4s2.NewWorkflow(&cfg, client, afero.NewOsFs(), transfer.Options{
		ChunkSize: cfg.UploadBytesPerChunk,
		Workers:   cfg.UploadWorkers,
	})

	outcome := workflow.Submit(context.Background(), req)
	switch outcome.Status {
	case d4s2.StatusWarning:
		log.Warn(outcome.Message)
	case d4s2.StatusFatal:
		return outcome.Err
	default:
		fmt.Println(outcome.Message)
	}
	return nil
}

func validate(req d4s2.Request) error {
	noun := req.Destination.Noun()
	if req.ProjectName == "" {
		return errors.NewFriendlyError("A project name is required.\n"+
			"Please provide it with `ddsclient %s -p <name>`", noun)
	}
	if (req.Email == "") == (req.Username == "") {
		return errors.NewFriendlyError(
			"Please identify the recipient of the %s with exactly one of "+
				"--email or --user.", noun)
	}
	return nil
}
