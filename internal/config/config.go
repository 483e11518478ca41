// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built once at
// startup and handed by reference to every component that needs a slice of it.
type Config struct {
	RemoteEndpoint         string            `mapstructure:"remote_endpoint" yaml:"remote_endpoint" validate:"required,url"`
	ListingURL             string            `mapstructure:"listing_url" yaml:"listing_url" validate:"omitempty,url"`
	BusyWaitTimeoutSeconds int               `mapstructure:"busy_wait_timeout_seconds" yaml:"busy_wait_timeout_seconds" validate:"gte=1"`
	Credentials            CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Logger                 LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser                BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Input                  InputConfig       `mapstructure:"input" yaml:"input"`
	Engine                 EngineConfig      `mapstructure:"engine" yaml:"engine"`
	Services               ServicesConfig    `mapstructure:"services" yaml:"services"`
	Selectors              SelectorConfig    `mapstructure:"selectors" yaml:"selectors"`
	Report                 ReportConfig      `mapstructure:"report" yaml:"report"`
}

// BusyWaitTimeout is the overlay wait ceiling as a duration.
func (c *Config) BusyWaitTimeout() time.Duration {
	return time.Duration(c.BusyWaitTimeoutSeconds) * time.Second
}

// CredentialsConfig is the optional login pair. When empty, the operator
// authenticates by hand before the engine takes over.
type CredentialsConfig struct {
	Username string `mapstructure:"username" yaml:"username" validate:"required_with=Password"`
	Password string `mapstructure:"password" yaml:"-" validate:"required_with=Username"`
}

// Present reports whether automatic login can be attempted.
func (c CredentialsConfig) Present() bool {
	return c.Username != "" && c.Password != ""
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format" validate:"oneof=console json"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug" validate:"logcolor"`
	Info   string `mapstructure:"info" yaml:"info" validate:"logcolor"`
	Warn   string `mapstructure:"warn" yaml:"warn" validate:"logcolor"`
	Error  string `mapstructure:"error" yaml:"error" validate:"logcolor"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic" validate:"logcolor"`
	Panic  string `mapstructure:"panic" yaml:"panic" validate:"logcolor"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal" validate:"logcolor"`
}

// BrowserConfig holds settings for the controlled browser. It defaults to a
// visible window because the operator may need to log in or change screens.
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless" yaml:"headless"`
	Args          []string      `mapstructure:"args" yaml:"args"`
	UserDataDir   string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	WindowWidth   int           `mapstructure:"window_width" yaml:"window_width" validate:"gte=0"`
	WindowHeight  int           `mapstructure:"window_height" yaml:"window_height" validate:"gte=0"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout" validate:"gt=0"`
	// ActionTimeout bounds a single CDP round trip (click, query, attribute read).
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout" validate:"gt=0"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout" validate:"gt=0"`
}

// InputConfig locates the hot-reloadable input file and names its fields.
type InputConfig struct {
	Path              string `mapstructure:"path" yaml:"path" validate:"required"`
	AssociationsField string `mapstructure:"associations_field" yaml:"associations_field" validate:"required"`
	ProvidersField    string `mapstructure:"providers_field" yaml:"providers_field" validate:"required"`
	ContainersField   string `mapstructure:"containers_field" yaml:"containers_field" validate:"required"`
	Watch             bool   `mapstructure:"watch" yaml:"watch"`
}

// Self-row policies for the row locator.
const (
	SelfRowLast = "last"
	SelfRowNone = "none"
)

// Association match policies for the picker evaluation.
const (
	MatchAggregate = "aggregate"
	MatchExact     = "exact"
)

// EngineConfig tunes the reconciliation engine.
type EngineConfig struct {
	ActionAttempts    int           `mapstructure:"action_attempts" yaml:"action_attempts" validate:"gte=1,lte=10"`
	SelfRowPolicy     string        `mapstructure:"self_row_policy" yaml:"self_row_policy" validate:"oneof=last none"`
	AssociationMatch  string        `mapstructure:"association_match" yaml:"association_match" validate:"oneof=aggregate exact"`
	EntitiesPerMinute float64       `mapstructure:"entities_per_minute" yaml:"entities_per_minute" validate:"gte=0"`
	Timings           TimingsConfig `mapstructure:"timings" yaml:"timings"`
}

// TimingsConfig holds every settle delay and bounded wait the engine uses.
// Zero is a valid value for all settle delays.
type TimingsConfig struct {
	ScrollSettle     time.Duration `mapstructure:"scroll_settle" yaml:"scroll_settle" validate:"gte=0"`
	StaleBackoff     time.Duration `mapstructure:"stale_backoff" yaml:"stale_backoff" validate:"gte=0"`
	IdlePreDelay     time.Duration `mapstructure:"idle_pre_delay" yaml:"idle_pre_delay" validate:"gte=0"`
	IdleSettle       time.Duration `mapstructure:"idle_settle" yaml:"idle_settle" validate:"gte=0"`
	PickerTimeout    time.Duration `mapstructure:"picker_timeout" yaml:"picker_timeout" validate:"gte=0"`
	PickerOpenSettle time.Duration `mapstructure:"picker_open_settle" yaml:"picker_open_settle" validate:"gte=0"`
	FilterSettle     time.Duration `mapstructure:"filter_settle" yaml:"filter_settle" validate:"gte=0"`
	ToggleSettle     time.Duration `mapstructure:"toggle_settle" yaml:"toggle_settle" validate:"gte=0"`
	ElementTimeout   time.Duration `mapstructure:"element_timeout" yaml:"element_timeout" validate:"gte=0"`
	TableTimeout     time.Duration `mapstructure:"table_timeout" yaml:"table_timeout" validate:"gte=0"`
	EntryTimeout     time.Duration `mapstructure:"entry_timeout" yaml:"entry_timeout" validate:"gte=0"`
	RecoverySettle   time.Duration `mapstructure:"recovery_settle" yaml:"recovery_settle" validate:"gte=0"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
}

// ServicesConfig configures the register-services mode.
type ServicesConfig struct {
	Permissions []string `mapstructure:"permissions" yaml:"permissions" validate:"dive,required"`
}

// SelectorConfig holds every locator the engine uses. Values starting with
// "/", "(" or "xpath:" are XPath; everything else is CSS. Values containing
// "%s" are templates filled with a quoted name or label.
type SelectorConfig struct {
	BusyIndicator string `mapstructure:"busy_indicator" yaml:"busy_indicator" validate:"required"`
	ActiveClass   string `mapstructure:"active_class" yaml:"active_class" validate:"required"`

	// Listing rows.
	EditAffordance       string   `mapstructure:"edit_affordance" yaml:"edit_affordance" validate:"required"`
	Row                  string   `mapstructure:"row" yaml:"row" validate:"required"`
	DeactivateAffordance string   `mapstructure:"deactivate_affordance" yaml:"deactivate_affordance" validate:"required"`
	ActivateAffordance   string   `mapstructure:"activate_affordance" yaml:"activate_affordance" validate:"required"`
	AffirmativeMarkers   []string `mapstructure:"affirmative_markers" yaml:"affirmative_markers"`
	NegativeMarkers      []string `mapstructure:"negative_markers" yaml:"negative_markers"`

	// Association picker (multi-select checkbox menu).
	Picker             string `mapstructure:"picker" yaml:"picker" validate:"required"`
	PickerTrigger      string `mapstructure:"picker_trigger" yaml:"picker_trigger" validate:"required"`
	PickerLabel        string `mapstructure:"picker_label" yaml:"picker_label" validate:"required"`
	PickerFilter       string `mapstructure:"picker_filter" yaml:"picker_filter" validate:"required"`
	PickerHeaderToggle string `mapstructure:"picker_header_toggle" yaml:"picker_header_toggle" validate:"required"`
	PickerItem         string `mapstructure:"picker_item" yaml:"picker_item" validate:"required"`
	PickerItemToggle   string `mapstructure:"picker_item_toggle" yaml:"picker_item_toggle" validate:"required"`
	PickerClose        string `mapstructure:"picker_close" yaml:"picker_close" validate:"required"`
	SaveButton         string `mapstructure:"save_button" yaml:"save_button" validate:"required"`
	CancelButton       string `mapstructure:"cancel_button" yaml:"cancel_button" validate:"required"`

	// Service registration form.
	CreateServiceButton string   `mapstructure:"create_service_button" yaml:"create_service_button" validate:"required"`
	ProviderTrigger     string   `mapstructure:"provider_trigger" yaml:"provider_trigger" validate:"required"`
	ProviderFilter      string   `mapstructure:"provider_filter" yaml:"provider_filter" validate:"required"`
	ProviderItem        string   `mapstructure:"provider_item" yaml:"provider_item" validate:"required"`
	TransactionsTable   string   `mapstructure:"transactions_table" yaml:"transactions_table" validate:"required"`
	PermissionToggles   []string `mapstructure:"permission_toggles" yaml:"permission_toggles" validate:"min=1,dive,required"`
	AllTransactions     string   `mapstructure:"all_transactions" yaml:"all_transactions" validate:"required"`
	ServiceSaveButton   string   `mapstructure:"service_save_button" yaml:"service_save_button" validate:"required"`

	// Login form, used only when credentials are configured.
	LoginUsername string `mapstructure:"login_username" yaml:"login_username"`
	LoginPassword string `mapstructure:"login_password" yaml:"login_password"`
	LoginSubmit   string `mapstructure:"login_submit" yaml:"login_submit"`

	// Container navigation, used only by the per-container mode.
	ContainerSearchInput  string `mapstructure:"container_search_input" yaml:"container_search_input"`
	ContainerSearchButton string `mapstructure:"container_search_button" yaml:"container_search_button"`
	ContainerResult       string `mapstructure:"container_result" yaml:"container_result"`
	ContainerBack         string `mapstructure:"container_back" yaml:"container_back"`
	ContainerSearchURL    string `mapstructure:"container_search_url" yaml:"container_search_url"`
}

// ReportConfig controls the optional JSON cycle reports.
type ReportConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("busy_wait_timeout_seconds", 40)

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autotiss")
	v.SetDefault("logger.log_file", "autotiss.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.navigation_timeout", "60s")

	// -- Input --
	v.SetDefault("input.path", "dados.json")
	v.SetDefault("input.associations_field", "logins_para_vincular")
	v.SetDefault("input.providers_field", "medicos_para_cadastrar")
	v.SetDefault("input.containers_field", "containers")
	v.SetDefault("input.watch", true)

	// -- Engine --
	v.SetDefault("engine.action_attempts", 3)
	v.SetDefault("engine.self_row_policy", SelfRowLast)
	v.SetDefault("engine.association_match", MatchAggregate)
	v.SetDefault("engine.entities_per_minute", 0)
	v.SetDefault("engine.timings.scroll_settle", "500ms")
	v.SetDefault("engine.timings.stale_backoff", "1s")
	v.SetDefault("engine.timings.idle_pre_delay", "300ms")
	v.SetDefault("engine.timings.idle_settle", "300ms")
	v.SetDefault("engine.timings.picker_timeout", "10s")
	v.SetDefault("engine.timings.picker_open_settle", "1500ms")
	v.SetDefault("engine.timings.filter_settle", "1500ms")
	v.SetDefault("engine.timings.toggle_settle", "500ms")
	v.SetDefault("engine.timings.element_timeout", "5s")
	v.SetDefault("engine.timings.table_timeout", "15s")
	v.SetDefault("engine.timings.entry_timeout", "10s")
	v.SetDefault("engine.timings.recovery_settle", "1s")
	v.SetDefault("engine.timings.poll_interval", "250ms")

	// -- Services --
	v.SetDefault("services.permissions", []string{"Visualiza transações", "Cancela/Exclui"})

	// -- Selectors --
	v.SetDefault("selectors.busy_indicator", "#aguarde")
	v.SetDefault("selectors.active_class", "ui-state-active")
	v.SetDefault("selectors.edit_affordance", "img[title='Alterar']")
	v.SetDefault("selectors.row", "tr")
	v.SetDefault("selectors.deactivate_affordance", "img[src*='inativar.png']")
	v.SetDefault("selectors.activate_affordance", "img[src*='ativar.png']:not([src*='inativar.png'])")
	v.SetDefault("selectors.affirmative_markers", []string{"Sim"})
	v.SetDefault("selectors.negative_markers", []string{"Não"})
	v.SetDefault("selectors.picker", "div[id$=':escolherLogins']")
	v.SetDefault("selectors.picker_trigger", ".ui-selectcheckboxmenu-trigger")
	v.SetDefault("selectors.picker_label", ".ui-selectcheckboxmenu-label")
	v.SetDefault("selectors.picker_filter", "div.ui-selectcheckboxmenu-filter-container input")
	v.SetDefault("selectors.picker_header_toggle", "div.ui-selectcheckboxmenu-header .ui-chkbox-box")
	v.SetDefault("selectors.picker_item", "li.ui-selectcheckboxmenu-item")
	v.SetDefault("selectors.picker_item_toggle", ".ui-chkbox-box")
	v.SetDefault("selectors.picker_close", "a.ui-selectcheckboxmenu-close")
	v.SetDefault("selectors.save_button", "//form[@id='formServico']//span[text()='Salvar']")
	v.SetDefault("selectors.cancel_button", "//form[@id='formServico']//span[text()='Cancelar']")
	v.SetDefault("selectors.create_service_button", "//button[span[text()='Criar Serviço']]")
	v.SetDefault("selectors.provider_trigger", "div[id$=':prestadorFuncionario'] .ui-selectonemenu-trigger")
	v.SetDefault("selectors.provider_filter", "div[id$=':prestadorFuncionario_panel'] input")
	v.SetDefault("selectors.provider_item", "//div[contains(@id, 'prestadorFuncionario_panel')]//li[contains(., %s)]")
	v.SetDefault("selectors.transactions_table", "div.ui-datatable")
	v.SetDefault("selectors.permission_toggles", []string{
		"//tr[.//label[contains(text(), %s)]]//div[contains(@class, 'ui-chkbox-box')]",
		"//label[contains(text(), %s)]/..//div[contains(@class, 'ui-chkbox-box')]",
		"//label[contains(text(), %s)]/preceding-sibling::div[contains(@class, 'ui-chkbox-box')]",
	})
	v.SetDefault("selectors.all_transactions", "//div[contains(@class, 'ui-datatable-scrollable-header')]//div[contains(@class, 'ui-chkbox-box')]")
	v.SetDefault("selectors.service_save_button", "//span[text()='Salvar']")
	v.SetDefault("selectors.login_username", "input[type='text']")
	v.SetDefault("selectors.login_password", "input[type='password']")
	v.SetDefault("selectors.login_submit", "button[type='submit']")
	v.SetDefault("selectors.container_back", "//span[text()='Voltar']")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Keep the password out of config files where possible.
	_ = v.BindEnv("credentials.password", "AUTOTISS_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves "~" in every user-supplied filesystem path.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Input.Path, &c.Logger.LogFile, &c.Browser.UserDataDir, &c.Report.Dir} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("could not resolve path '%s': %w", *p, err)
		}
		*p = expanded
	}
	return nil
}
