package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ppiankov/astproof/internal/model"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

var (
	cfgFile string
	verbose bool
	noColor bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "astproof",
	Short: "astproof - AST-backed verification of LLM exclusion candidates",
	Long: `astproof decides whether identifiers a language model predicted as safe to
remove are backed by hard evidence.

A candidate is confirmed only when it exists in the AST produced by an
independent analyzer and at least one declarative rule matches the symbol.
Candidates missing from the AST are hallucinations; candidates without a
matching rule lack evidence.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("astproof %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.astproof/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.String("rules", "", "rule document (YAML)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: console, json")

	_ = viper.BindPFlag("rules.path", pf.Lookup("rules"))
	_ = viper.BindPFlag("logging.level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", pf.Lookup("log-format"))
	_ = viper.BindPFlag("output.verbose", pf.Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	setDefaults("", reflect.ValueOf(*model.DefaultConfig()))

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".astproof"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// ASTPROOF_ANALYZER_PATH overrides analyzer.path, and so on
	viper.SetEnvPrefix("ASTPROOF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every config key with viper so that environment
// variables are honored for keys absent from the config file.
func setDefaults(prefix string, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if f := v.Field(i); f.Kind() == reflect.Struct {
			setDefaults(key, f)
		} else {
			viper.SetDefault(key, f.Interface())
		}
	}
}

// loadConfig returns the effective configuration
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if noColor {
		cfg.Output.Color = false
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// bindFlags binds command flags to config keys. Called from PreRunE so that
// flags shared by several commands bind to the command actually running.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// policyFlags registers the decision policy flags shared by run and verify
func policyFlags(fs *pflag.FlagSet) {
	fs.Bool("strict", true, "require a rule match to confirm an exclusion")
	fs.Float64("min-confidence", 1.0, "minimum confidence for a final exclusion")
	fs.String("duplicates", "keep-last", "duplicate symbol names: keep-last, keep-first, keep-all")
	fs.Int("verify-workers", 1, "candidates verified in parallel per file")
}

var policyKeys = map[string]string{
	"strict":         "verify.strict",
	"min-confidence": "verify.min_confidence",
	"duplicates":     "verify.duplicates",
	"verify-workers": "concurrency.verify_workers",
}

func mergeKeys(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
