package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core/engine"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/output"
)

var askUserID int64

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Send one message through the relay as a given user",
	Long: `Send one message through the relay as a given user.

The message is counted against the user's quota exactly as a Telegram message
would be, and the reply is printed as the user would see it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if askUserID == 0 {
			return fmt.Errorf("--user must be a non-zero Telegram user id")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			ExitWithCode(observability.CLILogger, exitCodeFor(err), "Configuration invalid", err)
		}

		rt, err := startRelay(ctx, cfg, observability.CLILogger)
		if err != nil {
			ExitWithCode(observability.CLILogger, exitCodeFor(err), "Relay startup failed", err)
		}
		defer rt.Close() // nolint:errcheck // best-effort cleanup

		reply := rt.relay.Handle(ctx, askUserID, strings.Join(args, " "))
		return renderReply(cmd, askUserID, reply)
	},
}

func renderReply(cmd *cobra.Command, userID int64, reply engine.Reply) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}

	view := &output.ReplyView{
		UserID:  userID,
		Reply:   reply.Text,
		Outcome: string(reply.Kind),
		State:   reply.State,
	}
	if reply.Err != nil {
		view.Error = reply.Err.Error()
	}

	rendered, err := output.NewFormatter(format).FormatReply(view)
	if err != nil {
		return err
	}
	sink, err := resolveOutputSink(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()
	return writeRendered(sink, rendered)
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().Int64VarP(&askUserID, "user", "u", 0, "Telegram user id to act as (required)")
	_ = askCmd.MarkFlagRequired("user")
	addOutputFlags(askCmd)
}
