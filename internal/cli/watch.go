// watch.go implements "nudgeeqctl watch", holding a live subscription
// open and surfacing (optionally auto-answering) incoming requests.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heiloMeow/nudgeeq/internal/inbox"
)

var watchReply string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for incoming requests",
	Long: `Subscribe to the live event stream for your role. Missed
requests are reconciled from the server on every (re)connect, so
nothing is lost across restarts or dropped connections.

--reply controls what happens to each request:
  none     print it and leave it pending (default)
  accept   answer with the canned acceptance
  decline  answer with the canned refusal
  ignore   drop it without answering`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := requireRole(); err != nil {
		return err
	}
	switch watchReply {
	case "none", "accept", "decline", "ignore":
	default:
		return fmt.Errorf("invalid --reply %q (want none, accept, decline or ignore)", watchReply)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	markPath, err := inbox.DefaultWatermarkPath()
	if err != nil {
		markPath = "" // memory-only marks still work for one session
	}
	marks, err := inbox.OpenWatermarks(markPath)
	if err != nil {
		return fmt.Errorf("open watermark store: %w", err)
	}

	logger := zap.NewNop()
	client := newClient()
	gate := inbox.NewGate(roleID, client, marks, printNotice, logger)

	stream := inbox.NewStream(apiBase, roleID, gate.HandlePush, func() {
		rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := gate.Reconcile(rctx); err != nil {
			fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		}
	}, logger)

	go stream.Run(ctx)

	fmt.Printf("watching as %s (reply mode: %s)\n", roleID, watchReply)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nbye")
			return nil
		case <-ticker.C:
			drainQueue(ctx, gate, seen)
		}
	}
}

// drainQueue prints newly arrived requests and applies the reply mode
// to the head until the queue is empty or left pending.
func drainQueue(ctx context.Context, gate *inbox.Gate, seen map[string]bool) {
	for {
		head := gate.Head()
		if head == nil {
			return
		}
		if !seen[head.ID] {
			seen[head.ID] = true
			from := head.FromRoleName
			if from == "" {
				if sender := gate.SenderMeta(ctx, head.FromRoleID); sender != nil {
					from = sender.Name
				}
			}
			if from == "" {
				from = head.FromRoleID
			}
			fmt.Printf("%s  request from %s: %s\n",
				head.CreatedAt.Local().Format("15:04:05"), from, head.Text)
		}

		switch watchReply {
		case "accept":
			if err := gate.Accept(ctx); err != nil {
				return
			}
			fmt.Printf("  -> replied: %s\n", inbox.ReplyAccept)
		case "decline":
			if err := gate.Decline(ctx); err != nil {
				return
			}
			fmt.Printf("  -> replied: %s\n", inbox.ReplyDecline)
		case "ignore":
			gate.Ignore()
			fmt.Println("  -> ignored")
		default:
			return // leave pending
		}
	}
}

func printNotice(n inbox.Notice) {
	switch n.Kind {
	case "response":
		fmt.Printf("response from %s: %s\n", n.From, n.Text)
	case "error":
		fmt.Fprintf(os.Stderr, "reply to %s failed: %v\n", n.From, n.Err)
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchReply, "reply", "none", "Auto-reply mode: none, accept, decline or ignore")
}
