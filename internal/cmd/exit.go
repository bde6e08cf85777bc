package cmd

import (
	"errors"
	"fmt"
	"os"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/core/store"
)

// exitCodeFor maps startup failures to foundry exit codes.
func exitCodeFor(err error) foundry.ExitCode {
	if errors.Is(err, config.ErrInvalidConfig) {
		return foundry.ExitConfigInvalid
	}
	if errors.Is(err, store.ErrStorageInit) {
		return foundry.ExitFileNotFound
	}
	return foundry.ExitFailure
}

// ExitWithCode reports err under msg and terminates with code. The report
// goes to logger as a structured line, or to stderr when logger is nil.
func ExitWithCode(logger *logging.Logger, code foundry.ExitCode, msg string, err error) {
	info, known := foundry.GetExitCodeInfo(code)
	if !known {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, code)
		os.Exit(int(code))
	}

	var env *gferrors.ErrorEnvelope
	hasEnvelope := errors.As(err, &env)

	if logger == nil {
		line := "FATAL: " + msg
		switch {
		case hasEnvelope:
			line += fmt.Sprintf(" [%s]: %s", env.Code, env.Message)
		case err != nil:
			line += fmt.Sprintf(": %v", err)
		}
		fmt.Fprintln(os.Stderr, line)
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	if hasEnvelope {
		fields = append(fields, zap.String("error_code", env.Code), zap.String("correlation_id", env.CorrelationID))
		if len(env.Context) > 0 {
			fields = append(fields, zap.Any("error_context", env.Context))
		}
		if original, ok := env.Original.(error); ok {
			err = original
		}
	}
	logger.Error(msg, append(fields, zap.Error(err))...)
	os.Exit(info.Code)
}

// ExitWithCodeStderr exits before any logger exists.
func ExitWithCodeStderr(code foundry.ExitCode, msg string, err error) {
	ExitWithCode(nil, code, msg, err)
}
