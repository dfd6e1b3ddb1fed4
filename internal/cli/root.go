// internal/cli/root.go
package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Corphon/shakescript/internal/models"
	"github.com/Corphon/shakescript/internal/services"
	"github.com/Corphon/shakescript/internal/storage"
	"github.com/Corphon/shakescript/internal/storyapi"
)

const cliCacheTTL = time.Minute

// env carries what every subcommand needs once the root has resolved
// its settings
type env struct {
	v       *viper.Viper
	cfgFile string

	settings *Settings
	printer  *Printer
	logger   *zap.Logger

	library *services.LibraryService
	stories *services.StoryService
	exports *services.ExportService
	stats   *services.StatsService
}

// NewRootCommand builds shakectl. Each call returns an independent tree.
func NewRootCommand() *cobra.Command {
	e := &env{v: viper.New()}

	root := &cobra.Command{
		Use:   "shakectl",
		Short: "Command line client for the shakescript story API",
		Long: `shakectl browses, generates and exports stories through the story API.

Settings come from flags, SHAKESCRIPT_* environment variables or .shakectl.yaml.

Example usage:
  shakectl list --search knight
  shakectl show 42 --episode 2
  shakectl generate --prompt "A knight's journey" --episodes 3 --batch 1
  shakectl export 42 --format pdf --out knight.pdf`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.cfgFile, "config", "", "config file (default is .shakectl.yaml)")
	flags.String("api-url", "", "story API base URL")
	flags.Duration("timeout", 0, "per request timeout")
	flags.Bool("no-color", false, "disable colored output")
	flags.BoolP("verbose", "v", false, "log backend calls to stderr")

	_ = e.v.BindPFlag("api_base_url", flags.Lookup("api-url"))
	_ = e.v.BindPFlag("api_timeout", flags.Lookup("timeout"))
	_ = e.v.BindPFlag("no_color", flags.Lookup("no-color"))
	_ = e.v.BindPFlag("verbose", flags.Lookup("verbose"))

	root.AddCommand(
		newListCommand(e),
		newShowCommand(e),
		newGenerateCommand(e),
		newExportCommand(e),
		newDeleteCommand(e),
		newStatsCommand(e),
	)
	return root
}

// init resolves settings and wires the services
func (e *env) init(cmd *cobra.Command) error {
	settings, err := loadSettings(e.v, e.cfgFile)
	if err != nil {
		return err
	}
	e.settings = settings
	e.printer = NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), settings.NoColor)
	e.logger = newLogger(cmd.ErrOrStderr(), settings.Verbose)

	client := storyapi.New(storyapi.Options{
		BaseURL:   settings.APIBaseURL,
		Timeout:   settings.Timeout,
		RateLimit: settings.RateLimit,
		RateBurst: 1,
		Logger:    e.logger,
	})

	lists, err := storage.NewResponseCache[[]models.StorySummary](1, cliCacheTTL)
	if err != nil {
		return err
	}
	details, err := storage.NewResponseCache[models.StoryDetail](16, cliCacheTTL)
	if err != nil {
		return err
	}

	e.library = services.NewLibraryService(client, lists, details, e.logger)
	e.stories = services.NewStoryService(client, e.library, nil, nil, e.logger, services.StoryServiceConfig{
		Timeout: settings.Timeout,
	})
	e.exports = services.NewExportService(e.library)
	e.stats = services.NewStatsService()

	e.logger.Debug("shakectl configured",
		zap.String("api_base_url", settings.APIBaseURL),
		zap.Duration("timeout", settings.Timeout),
		zap.String("config_file", e.v.ConfigFileUsed()))
	return nil
}

func (e *env) close() {
	if e.stories != nil {
		e.stories.Close()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zapcore.DebugLevel))
}

// Execute runs shakectl with the process arguments and returns the exit code
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		NewPrinter(root.OutOrStdout(), root.ErrOrStderr(), false).Error("%v", err)
		return 1
	}
	return 0
}
