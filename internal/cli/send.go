// send.go implements "nudgeeqctl send", posting one request or response.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heiloMeow/nudgeeq/internal/models"
)

var (
	sendKind      string
	sendInReplyTo string
)

var sendCmd = &cobra.Command{
	Use:   "send <to-role-id> <text...>",
	Short: "Send a message to another role",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	if err := requireRole(); err != nil {
		return err
	}
	to := args[0]
	text := strings.Join(args[1:], " ")

	id, err := newClient().CreateMessage(cmd.Context(), roleID, to, text,
		models.NormalizeKind(sendKind), sendInReplyTo)
	if err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	fmt.Printf("sent %s\n", id)
	return nil
}

func init() {
	sendCmd.Flags().StringVar(&sendKind, "kind", models.KindRequest, "Message kind: request or response")
	sendCmd.Flags().StringVar(&sendInReplyTo, "in-reply-to", "", "Id of the request this responds to")
}
