package policydoc

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads a YAML policy document from path and decodes it into a
// Document, applying the same mapstructure decoding internal/config
// uses for OSSConfig. It does not call Validate; callers needing a
// structurally valid Document should call Validate (or Build, which
// validates internally) afterward.
func Load(path string) (Document, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Document{}, fmt.Errorf("policydoc: read %s: %w", path, err)
	}

	var doc Document
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&doc, viper.DecodeHook(decodeHook)); err != nil {
		return Document{}, fmt.Errorf("policydoc: decode %s: %w", path, err)
	}
	return doc, nil
}
