package config

import "fmt"

// PDFConfig configures the headless Chrome used for PDF export.
type PDFConfig struct {
	DebuggerURL string   `yaml:"debugger_url"` // connect to a running Chrome instead of launching
	ChromeBin   string   `yaml:"chrome_bin"`
	Flags       []string `yaml:"flags"`
	Headless    bool     `yaml:"headless"`
	Timeout     string   `yaml:"timeout"`
	Paper       string   `yaml:"paper"` // letter, a4
}

// SignatureConfig bounds what a captured signature image may look like.
type SignatureConfig struct {
	MaxBytes    int     `yaml:"max_bytes"`
	MinWidth    int     `yaml:"min_width"`
	MinHeight   int     `yaml:"min_height"`
	MaxWidth    int     `yaml:"max_width"`
	MaxHeight   int     `yaml:"max_height"`
	MinInkRatio float64 `yaml:"min_ink_ratio"`
}

func (s SignatureConfig) validate() error {
	if s.MaxBytes <= 0 {
		return fmt.Errorf("signature.max_bytes must be positive")
	}
	if s.MinWidth <= 0 || s.MinHeight <= 0 {
		return fmt.Errorf("signature minimum dimensions must be positive")
	}
	if s.MaxWidth < s.MinWidth || s.MaxHeight < s.MinHeight {
		return fmt.Errorf("signature maximum dimensions must not be below the minimum")
	}
	if s.MinInkRatio < 0 || s.MinInkRatio >= 1 {
		return fmt.Errorf("signature.min_ink_ratio must be in [0, 1)")
	}
	return nil
}
