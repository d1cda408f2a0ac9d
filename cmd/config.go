package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tb"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage tb configuration.

Running bare 'tb config' is the same as 'tb config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# tb configuration
# See: tb config show (for effective values and sources)

# Issue store base URL
api_url: "{{ .APIURL }}"

# How often the board re-fetches issues (default: 15s)
poll_interval: {{ .PollInterval }}

# Per-request timeout; 0 leaves it to the transport (default: 0)
# http_timeout: {{ .HTTPTimeout }}

# Credentials are written here by 'tb login' and removed by 'tb logout'.
# auth:
#   token: ""
#   user_id: ""
#   team_id: ""
#   username: ""

# Local issue store started by 'tb serve'
serve:
  port: {{ .ServePort }}
  # SQLite database; ":memory:" keeps nothing between runs
  db_path: "{{ .ServeDBPath }}"
  log_file: "{{ .ServeLogFile }}"
`

type configTemplateData struct {
	APIURL       string
	PollInterval string
	HTTPTimeout  string
	ServePort    int
	ServeDBPath  string
	ServeLogFile string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		APIURL:       viper.GetString("api_url"),
		PollInterval: viper.GetDuration("poll_interval").String(),
		HTTPTimeout:  viper.GetDuration("http_timeout").String(),
		ServePort:    viper.GetInt("serve.port"),
		ServeDBPath:  viper.GetString("serve.db_path"),
		ServeLogFile: viper.GetString("serve.log_file"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "api_url", EnvVar: "TB_API_URL"},
	{Key: "poll_interval", EnvVar: "TB_POLL_INTERVAL"},
	{Key: "http_timeout", EnvVar: "TB_HTTP_TIMEOUT"},
	{Key: "auth.username", EnvVar: "TB_AUTH_USERNAME"},
	{Key: "auth.user_id", EnvVar: "TB_AUTH_USER_ID"},
	{Key: "auth.team_id", EnvVar: "TB_AUTH_TEAM_ID"},
	{Key: "auth.token", EnvVar: "TB_AUTH_TOKEN", Secret: true},
	{Key: "serve.port", EnvVar: "TB_SERVE_PORT"},
	{Key: "serve.db_path", EnvVar: "TB_SERVE_DB_PATH"},
	{Key: "serve.log_file", EnvVar: "TB_SERVE_LOG_FILE"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret && viper.GetString(k.Key) != "" {
			val = "********"
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set: set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'tb config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}

// writeConfigValues merges values (dot-notation keys) into the config file,
// keeping every other key. A nil value removes the key.
func writeConfigValues(values map[string]any) (string, error) {
	cfgPath := viper.ConfigFileUsed()
	if cfgPath == "" {
		p, err := configFilePath()
		if err != nil {
			return "", err
		}
		cfgPath = p
	}

	doc := map[string]any{}
	if data, err := os.ReadFile(cfgPath); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("parse %s: %w", cfgPath, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read %s: %w", cfgPath, err)
	}

	for key, val := range values {
		setNested(doc, strings.Split(key, "."), val)
		if val == nil {
			viper.Set(key, "")
		} else {
			viper.Set(key, val)
		}
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, nil
}

// setNested sets (or with a nil val, deletes) path inside m.
func setNested(m map[string]any, path []string, val any) {
	if len(path) == 1 {
		if val == nil {
			delete(m, path[0])
		} else {
			m[path[0]] = val
		}
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		if val == nil {
			return
		}
		child = map[string]any{}
		m[path[0]] = child
	}
	setNested(child, path[1:], val)
	if len(child) == 0 {
		delete(m, path[0])
	}
}
