package deliver

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

// New creates a new `deliver` command.
func New() *cobra.Command {
	var projectName, email, username, message string
	var resend, copyProject bool
	var includePaths, excludePaths, shareUsers []string
	cmd := &cobra.Command{
		Use:   "deliver -p PROJECT (--email EMAIL | --user USERNAME)",
		Short: "Hand over ownership of a project to another user.",
		Long: "Initiate delivery of a project to another user. The recipient gets an\n" +
			"email asking them to accept; ownership transfers once they do.",
		Run: func(_ *cobra.Command, _ []string) {
			req := d4s2.Request{
				Destination:    d4s2.DestinationDelivery,
				ProjectName:    projectName,
				Email:          email,
				Username:       username,
				UserMessage:    message,
				Resend:         resend,
				Copy:           copyProject,
				IncludePaths:   includePaths,
				ExcludePaths:   excludePaths,
				ShareUsernames: shareUsers,
			}
			if err := run(req); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVarP(&projectName, "project-name", "p", "",
		"Name of the project to deliver.")
	cmd.Flags().StringVar(&email, "email", "",
		"Email of the user to deliver to.")
	cmd.Flags().StringVar(&username, "user", "",
		"Username of the user to deliver to.")
	cmd.Flags().StringVar(&message, "message", "",
		"Message to include in the email sent to the recipient.")
	cmd.Flags().BoolVar(&resend, "resend", false,
		"Resend the notification email for a delivery that already went out.")
	cmd.Flags().StringSliceVar(&shareUsers, "share-users", nil,
		"Usernames of additional users who get shared access once the delivery is accepted.")
	cmd.Flags().BoolVar(&copyProject, "copy", false,
		"Deliver a point-in-time copy of the project instead of the project itself.")
	cmd.Flags().StringSliceVar(&includePaths, "include", nil,
		"With --copy, deliver only these paths within the project.")
	cmd.Flags().StringSliceVar(&excludePaths, "exclude", nil,
		"With --copy, skip these paths within the project.")
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
	if req.ProjectName == "" {
		return errors.NewFriendlyError("A project name is required.\n" +
			"Please provide it with `ddsclient deliver -p <name>`")
	}
	if (req.Email == "") == (req.Username == "") {
		return errors.NewFriendlyError(
			"Please identify the recipient of the delivery with exactly one of " +
				"--email or --user.")
	}
	if !req.Copy && (len(req.IncludePaths) > 0 || len(req.ExcludePaths) > 0) {
		return errors.NewFriendlyError(
			"--include and --exclude only apply when delivering a copy (--copy).")
	}
	return nil
}
