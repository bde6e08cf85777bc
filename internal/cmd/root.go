package cmd

import (
	"errors"
	"fmt"
	"os"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Ding-Fan/deepseek-telegram-bot/internal/ailink/driver"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/appid"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/config"
	"github.com/Ding-Fan/deepseek-telegram-bot/internal/observability"
)

var (
	cfgFile   string
	envFile   string
	verbose   bool
	traceFile string

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   appid.Get().BinaryName,
	Short: appid.Get().Description,
	Long: fmt.Sprintf(`%s - %s

Each Telegram user gets a fixed lifetime number of questions. Counts are kept
in a local ledger and every admitted message is forwarded to DeepSeek.`, appid.Get().BinaryName, appid.Get().Description),
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// config loading must not emit metrics to stdout before serve sets up telemetry
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	identity := appid.Get()
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName))
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration (missing file is ignored)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "trace upstream requests/responses to NDJSON file")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig loads .env, turns on tracing and reads the config file into the
// global viper. config.Load runs later, per command.
func initConfig() {
	identity := appid.Get()
	observability.InitCLILogger(identity.BinaryName, verbose)
	logger := observability.CLILogger

	if err := loadDotEnv(envFile); err != nil {
		logger.Warn("Failed to load env file", zap.String("path", envFile), zap.Error(err))
	}

	if traceFile != "" {
		// the trace file stays open until the process exits
		if _, err := driver.EnableTracing(traceFile); err != nil {
			logger.Warn("Failed to enable tracing", zap.Error(err))
		} else {
			logger.Debug("Upstream tracing enabled", zap.String("file", traceFile))
		}
	}

	if err := readConfigFile(viper.GetViper(), cfgFile, identity.ConfigName); err != nil {
		code := foundry.ExitConfigInvalid
		if errors.Is(err, errNoConfigDir) {
			code = foundry.ExitFileNotFound
		}
		ExitWithCode(logger, code, "Failed to read config file", err)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("Using config file", zap.String("path", used))
	}

	config.SetDefaults(viper.GetViper())
}

var errNoConfigDir = errors.New("no config directory could be resolved")

// readConfigFile reads explicit when given, otherwise searches the XDG config
// directory and ./config for config.yaml. A missing file is only an error
// when it was named explicitly.
func readConfigFile(v *viper.Viper, explicit, configName string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		return v.ReadInConfig()
	}

	dir := gfconfig.GetAppConfigDir(configName)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("%w: %v", errNoConfigDir, err)
		}
		dir = home
	}
	v.AddConfigPath(dir)
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

// loadDotEnv applies path to the process environment without overriding
// variables that are already set.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
