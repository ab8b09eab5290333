package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

var (
	notificationsUnread bool
	notificationsLimit  int
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications <user-id>",
	Short: "List in-app notifications of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotifications,
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <notification-id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Notifications().MarkRead(context.Background(), args[0]); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Notification %s marked as read\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)

	notificationsCmd.Flags().BoolVar(&notificationsUnread, "unread", false, "only unread notifications")
	notificationsCmd.Flags().IntVar(&notificationsLimit, "limit", 50, "maximum number of notifications")
}

func runNotifications(cmd *cobra.Command, args []string) error {
	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.Notifications().ListByUser(context.Background(), args[0], notificationsUnread, notificationsLimit)
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}
	return printNotifications(cmd.OutOrStdout(), list)
}

func printNotifications(w io.Writer, list []*models.Notification) error {
	switch GetOutput() {
	case "json":
		if list == nil {
			list = []*models.Notification{}
		}
		return printJSON(w, list)
	case "plain":
		for _, n := range list {
			fmt.Fprintf(w, "%s %s %s %s\n", n.ID, n.Priority, n.PetID, n.Title)
		}
		return nil
	}

	if len(list) == 0 {
		fmt.Fprintln(w, "No notifications.")
		return nil
	}

	tw := newTable(w, "ID", "CREATED", "PET", "PRIORITY", "READ", "TITLE")
	for _, n := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.PetID, n.Priority, yesNo(n.Read), truncate(n.Title, 50))
	}
	return tw.Flush()
}
