package types

import "time"

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Backend selects the API client: "chat" (OpenAI-compatible) or "gemini".
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Model is the AI model identifier (e.g. "kimi-k2-turbo-preview").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// BaseURL is the API root for OpenAI-compatible backends.
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Temperature is the sampling temperature (default 0.1).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// Timeout bounds a single API call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ExceedAction selects what happens when a document breaks an upload limit.
type ExceedAction string

const (
	ExceedSkip ExceedAction = "skip"
	ExceedStop ExceedAction = "stop"
)

// UploadLimits caps the documents sent to the extraction service in one run.
type UploadLimits struct {
	// MaxFiles is the maximum number of documents per run (default 1000).
	MaxFiles int `json:"max_files" yaml:"max_files" mapstructure:"max_files"`

	// MaxFileBytes is the maximum size of a single document (default 100 MB).
	MaxFileBytes int64 `json:"max_file_bytes" yaml:"max_file_bytes" mapstructure:"max_file_bytes"`

	// MaxTotalBytes is the maximum combined size per run (default 10 GB).
	MaxTotalBytes int64 `json:"max_total_bytes" yaml:"max_total_bytes" mapstructure:"max_total_bytes"`

	// WarningThreshold is the usage fraction that triggers a warning (default 0.8).
	WarningThreshold float64 `json:"warning_threshold" yaml:"warning_threshold" mapstructure:"warning_threshold"`

	// OnExceed is "skip" (drop the document) or "stop" (abort the run).
	OnExceed ExceedAction `json:"on_exceed" yaml:"on_exceed" mapstructure:"on_exceed"`
}

// DefaultUploadLimits returns the limits of a single service account.
func DefaultUploadLimits() UploadLimits {
	return UploadLimits{
		MaxFiles:         1000,
		MaxFileBytes:     100 << 20,
		MaxTotalBytes:    10 << 30,
		WarningThreshold: 0.8,
		OnExceed:         ExceedSkip,
	}
}

// FiscalConfig holds settings for the fiscal text extractor.
type FiscalConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// SourceDir is the root of the disclosure documents (<unit>/<year>/<files>).
	SourceDir string `json:"source_dir" yaml:"source_dir" mapstructure:"source_dir"`

	// Force re-extracts documents already present in the processing log.
	Force bool `json:"force" yaml:"force" mapstructure:"force"`

	// Indicators lists the fiscal fields requested from every document.
	Indicators []string `json:"indicators" yaml:"indicators" mapstructure:"indicators"`

	// NotFound is the marker the service uses for an indicator it cannot find.
	NotFound string `json:"not_found" yaml:"not_found" mapstructure:"not_found"`

	// MaxHistory is the number of recent messages replayed per unit (default 20).
	MaxHistory int `json:"max_history" yaml:"max_history" mapstructure:"max_history"`

	// Concurrency is the number of units processed in parallel (default 1).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// Limits caps the documents sent per run.
	Limits UploadLimits `json:"limits" yaml:"limits" mapstructure:"limits"`
}

// DefaultIndicators are the budget-execution indicators extracted by default:
// fiscal, tax and audit affairs, and the IT-construction sub-items of each.
var DefaultIndicators = []string{
	"财政事务",
	"税收事务",
	"审计事务",
	"财政事务——信息化建设",
	"税收事务——信息化建设",
	"审计事务——信息化建设",
}

// DebtLayout describes one known disclosure table layout. Every field is
// matched literally after whitespace removal.
type DebtLayout struct {
	// Name identifies the layout in logs and in the dataset name.
	Name string `json:"name" yaml:"name"`

	// TitlePattern is the regular expression that marks the first page of the table.
	TitlePattern string `json:"title_pattern" yaml:"title_pattern"`

	// FilenameKeyword restricts discovery to files whose name contains it.
	FilenameKeyword string `json:"filename_keyword" yaml:"filename_keyword"`

	// ScanRowLimit is the number of leading rows searched for the title (0 = all).
	ScanRowLimit int `json:"scan_row_limit" yaml:"scan_row_limit"`

	// HeaderSearchRows bounds the rows searched for the identity header (default 5).
	HeaderSearchRows int `json:"header_search_rows" yaml:"header_search_rows"`

	// OptionalHeaders are columns located anywhere in the header row by name.
	OptionalHeaders []string `json:"optional_headers" yaml:"optional_headers"`

	// IdentityHeaders is the contiguous header sequence that locates the table.
	// The first entry is the project name.
	IdentityHeaders []string `json:"identity_headers" yaml:"identity_headers"`

	// DataColumns follow the identity headers positionally.
	DataColumns []string `json:"data_columns" yaml:"data_columns"`

	// TrailingColumn takes the last bordered value of each row.
	TrailingColumn string `json:"trailing_column" yaml:"trailing_column"`

	// AnchorKey is the key text that starts a project's extended block.
	AnchorKey string `json:"anchor_key" yaml:"anchor_key"`

	// ExtendedVars are read in order from bordered cells after the anchor.
	ExtendedVars []string `json:"extended_vars" yaml:"extended_vars"`

	// AdditionalVar is located by key within AdditionalWindow rows after the extended block.
	AdditionalVar string `json:"additional_var" yaml:"additional_var"`

	// AdditionalWindow bounds the additional-variable search (default 10).
	AdditionalWindow int `json:"additional_window" yaml:"additional_window"`

	// SkipLabels are project names that mark summary rows (e.g. totals).
	SkipLabels []string `json:"skip_labels" yaml:"skip_labels"`

	// NumericColumns are normalized as amounts and checked by validation.
	NumericColumns []string `json:"numeric_columns" yaml:"numeric_columns"`
}

// Columns returns the output column order for the layout.
func (l DebtLayout) Columns() []string {
	var cols []string
	cols = append(cols, l.OptionalHeaders...)
	cols = append(cols, l.IdentityHeaders...)
	cols = append(cols, l.DataColumns...)
	if l.TrailingColumn != "" {
		cols = append(cols, l.TrailingColumn)
	}
	cols = append(cols, l.ExtendedVars...)
	if l.AdditionalVar != "" {
		cols = append(cols, l.AdditionalVar)
	}
	return cols
}

// SpecialBondLayout returns the layout of the special-purpose bond project
// information tables published with local-government bond issues.
func SpecialBondLayout() DebtLayout {
	return DebtLayout{
		Name:             "special-bond",
		TitlePattern:     `(20(1[5-9]|2[0-5]))?.{0,3}专项债券项目信息`,
		FilenameKeyword:  "专项",
		ScanRowLimit:     3,
		HeaderSearchRows: 5,
		OptionalHeaders:  []string{"债券名称", "发行规模"},
		IdentityHeaders:  []string{"项目名称", "项目单位", "主管部门"},
		DataColumns:      []string{"总值", "财政安排", "债券融资"},
		TrailingColumn:   "预期总收益",
		AnchorKey:        "项目名称",
		ExtendedVars: []string{
			"项目类型", "专项债券中用于该项目的金额", "其中：用于符合条件的重大项目资本金的金额",
			"简要描述", "建设期", "运营期", "债券存续期内项目总投资",
			"其中：不含专项债券的项目资本金", "专项债券融资", "其他债务融资",
		},
		AdditionalVar:    "债券存续期内项目总收益",
		AdditionalWindow: 10,
		SkipLabels:       []string{"合计", "总计", "小计"},
		NumericColumns: []string{
			"发行规模", "总值", "财政安排", "债券融资", "预期总收益",
			"专项债券中用于该项目的金额", "其中：用于符合条件的重大项目资本金的金额",
			"债券存续期内项目总投资", "其中：不含专项债券的项目资本金",
			"专项债券融资", "其他债务融资", "债券存续期内项目总收益",
		},
	}
}

// DebtConfig holds settings for the debt table cleaner.
type DebtConfig struct {
	// SourceDir is the root of the raw disclosure files (<region>/<year>/<files>).
	SourceDir string `json:"source_dir" yaml:"source_dir" mapstructure:"source_dir"`

	// ConsolidatedDir receives one consolidated workbook per group when set.
	ConsolidatedDir string `json:"consolidated_dir" yaml:"consolidated_dir" mapstructure:"consolidated_dir"`

	// Force reprocesses groups already present in the processing log.
	Force bool `json:"force" yaml:"force" mapstructure:"force"`

	// Layout is the table layout to match.
	Layout DebtLayout `json:"layout" yaml:"layout" mapstructure:"layout"`
}

// PanelConfig holds settings for the panel store.
type PanelConfig struct {
	// Dir is the directory holding panel.db and exports.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MaxMagnitude is the largest plausible amount (in 万元) accepted by validation.
	MaxMagnitude float64 `json:"max_magnitude" yaml:"max_magnitude" mapstructure:"max_magnitude"`
}
