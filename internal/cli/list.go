// list.go implements "nudgeeqctl sent" and "nudgeeqctl received",
// paging through the role's outbox and inbox.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heiloMeow/nudgeeq/internal/models"
)

var (
	listLimit  int
	listCursor string
)

var sentCmd = &cobra.Command{
	Use:   "sent",
	Short: "List messages you sent, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), "sent")
	},
}

var receivedCmd = &cobra.Command{
	Use:   "received",
	Short: "List messages sent to you, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), "received")
	},
}

func runList(ctx context.Context, direction string) error {
	if err := requireRole(); err != nil {
		return err
	}

	client := newClient()
	var (
		page *models.MessagePage
		err  error
	)
	if direction == "sent" {
		page, err = client.ListSent(ctx, roleID, listCursor, listLimit)
	} else {
		page, err = client.ListReceived(ctx, roleID, listCursor, listLimit)
	}
	if err != nil {
		return fmt.Errorf("list %s failed: %w", direction, err)
	}

	if len(page.Items) == 0 {
		fmt.Println("no messages")
		return nil
	}
	for _, item := range page.Items {
		fmt.Println(formatItem(item, direction))
	}
	if page.NextCursor != "" {
		fmt.Printf("\nmore: --cursor %q\n", page.NextCursor)
	}
	return nil
}

func formatItem(item models.MessageItem, direction string) string {
	party := "?"
	arrow := "from"
	if direction == "sent" {
		arrow = "to"
		if item.To != nil && item.To.Name != "" {
			party = item.To.Name
		} else {
			party = item.ToRoleID
		}
	} else if item.From != nil && item.From.Name != "" {
		party = item.From.Name
	} else {
		party = item.FromRoleID
	}

	line := fmt.Sprintf("%s  [%s]  %s %s: %s",
		item.CreatedAt.Local().Format("15:04:05"),
		models.NormalizeKind(item.Kind), arrow, party, item.Text)
	if item.InReplyTo != "" {
		line += fmt.Sprintf("  (re %s)", item.InReplyTo)
	}
	return line
}

func init() {
	for _, c := range []*cobra.Command{sentCmd, receivedCmd} {
		c.Flags().IntVar(&listLimit, "limit", 20, "Page size (1-100)")
		c.Flags().StringVar(&listCursor, "cursor", "", "Resume cursor from a previous page")
	}
}
