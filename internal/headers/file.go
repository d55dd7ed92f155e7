package headers

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AliasFile is an alias dictionary loaded from disk (YAML, JSON or TOML).
//
//	threshold: 0.6
//	stop_words: [de, la, the]
//	types:
//	  products:
//	    - field: stock
//	      aliases: ["existencias", "cantidad disponible", "qty on hand"]
//
// Each listed import type replaces that type's built-in aliases.
type AliasFile struct {
	Threshold float64            `mapstructure:"threshold" validate:"omitempty,gt=0,lte=1"`
	StopWords []string           `mapstructure:"stop_words"`
	Types     map[string][]Entry `mapstructure:"types" validate:"required,min=1,dive,min=1,dive"`
}

// LoadFile reads and validates an alias file.
func LoadFile(path string) (*AliasFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read alias file %s: %w", path, err)
	}

	var f AliasFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode alias file %s: %w", path, err)
	}

	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid alias file %s: %w", path, err)
	}

	return &f, nil
}

// Options returns the dictionary options the file sets.
func (f *AliasFile) Options() []Option {
	var opts []Option
	if f.Threshold > 0 {
		opts = append(opts, WithThreshold(f.Threshold))
	}
	if len(f.StopWords) > 0 {
		opts = append(opts, WithStopWords(f.StopWords))
	}
	return opts
}
