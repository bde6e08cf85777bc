package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/output"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and annotate the per-user request ledger",
	Long: `Inspect and annotate the per-user request ledger.

Do not run ledger note while serve is running against the same store; the
ledger assumes a single writer.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every user with request count and remaining quota",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(ctx context.Context, cfg *config.Config, h *ledgerHandle) error {
			view := output.NewLedgerView(h.Ledger.Snapshot(), cfg.Limits.MaxRequestsPerUser, h.Store.Location())
			return renderLedger(cmd, view)
		})
	},
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show the ledger record for one user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		return withLedger(cmd, func(ctx context.Context, cfg *config.Config, h *ledgerHandle) error {
			record, ok := h.Ledger.Get(id)
			if !ok {
				return fmt.Errorf("no ledger record for user %d", id)
			}
			view := &output.LedgerView{
				Location: h.Store.Location(),
				Limit:    cfg.Limits.MaxRequestsPerUser,
				Users:    []output.UserView{output.NewUserView(record, cfg.Limits.MaxRequestsPerUser)},
			}
			return renderLedger(cmd, view)
		})
	},
}

var ledgerNoteCmd = &cobra.Command{
	Use:   "note <user-id> <text>",
	Short: "Attach an operator note to a user without touching the count",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		note := strings.TrimSpace(strings.Join(args[1:], " "))
		return withLedger(cmd, func(ctx context.Context, cfg *config.Config, h *ledgerHandle) error {
			if err := h.Ledger.SetNote(ctx, id, note); err != nil {
				return err
			}
			if logger := observability.CLILogger; logger != nil {
				logger.Info("Ledger note saved", zap.Int64("user_id", id), zap.String("store", h.Store.Location()))
			}
			return nil
		})
	},
}

func withLedger(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, h *ledgerHandle) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	h, err := openLedger(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer h.Close() // nolint:errcheck // best-effort cleanup

	return fn(ctx, cfg, h)
}

func renderLedger(cmd *cobra.Command, view *output.LedgerView) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	rendered, err := output.NewFormatter(format).FormatLedger(view)
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

func parseUserID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q: must be a non-zero integer", value)
	}
	return id, nil
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerListCmd, ledgerShowCmd, ledgerNoteCmd)

	addOutputFlags(ledgerListCmd)
	addOutputFlags(ledgerShowCmd)
}
