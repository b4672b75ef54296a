package options

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/component-base/config"
	"k8s.io/component-base/logs"
	"k8s.io/component-base/logs/registry"
)

const (
	defaultFlushFrequency = 5 * time.Second
	logFlushFrequencyFlag = "log-flush-frequency"
)

type LoggingConfiguration struct {
	// Refer [Logs Options](https://github.com/kubernetes/component-base/blob/master/logs/options.go) for more information.
	config.LoggingConfiguration
}

func NewDefaultLoggingConfiguration() LoggingConfiguration {
	return LoggingConfiguration{
		config.LoggingConfiguration{
			Format:         "text",
			FlushFrequency: defaultFlushFrequency,
			Verbosity:      2,
		},
	}
}

func (l *LoggingConfiguration) ValidateAndApply() error {
	o := logs.NewOptions()
	o.Config.Format = l.Format
	o.Config.Verbosity = l.Verbosity
	o.Config.VModule = l.VModule
	if l.FlushFrequency > 0 {
		o.Config.FlushFrequency = l.FlushFrequency
	}
	return o.ValidateAndApply()
}

type marshalLoggingConfig struct {
	Format         string                      `json:"format"`
	FlushFrequency string                      `json:"flushFrequency,omitempty"`
	Verbosity      config.VerbosityLevel       `json:"verbosity"`
	VModule        config.VModuleConfiguration `json:"vmodule,omitempty"`
}

func (l *LoggingConfiguration) MarshalJSON() ([]byte, error) {
	return json.Marshal(&marshalLoggingConfig{
		Format:         l.Format,
		FlushFrequency: l.FlushFrequency.String(),
		Verbosity:      l.Verbosity,
		VModule:        l.VModule,
	})
}

// UnmarshalJSON accepts flushFrequency as a duration string such as "5s".
func (l *LoggingConfiguration) UnmarshalJSON(bytes []byte) error {
	in := &marshalLoggingConfig{}
	if err := json.Unmarshal(bytes, in); err != nil {
		return err
	}
	if len(in.FlushFrequency) > 0 {
		d, err := time.ParseDuration(in.FlushFrequency)
		if err != nil {
			return fmt.Errorf("flushFrequency: %w", err)
		}
		l.FlushFrequency = d
	}
	if len(in.Format) > 0 {
		l.Format = in.Format
	}
	l.Verbosity = in.Verbosity
	l.VModule = in.VModule
	return nil
}

func (l *LoggingConfiguration) BindLoggingFlags(fs *pflag.FlagSet) {
	notHidden := map[string]bool{
		"v":                   true,
		"vmodule":             true,
		"logging-format":      true,
		logFlushFrequencyFlag: true,
	}

	logsFs := pflag.NewFlagSet("", pflag.ContinueOnError)
	logs.BindLoggingFlags(&l.LoggingConfiguration, logsFs)
	logsFs.VisitAll(func(f *pflag.Flag) {
		if notHidden[f.Name] {
			if f.Name == "logging-format" {
				formats := fmt.Sprintf(`"%s"`, strings.Join(registry.LogRegistry.List(), `", "`))
				f.Usage = fmt.Sprintf("Sets the log format. Permitted formats: %s.", formats)
			}
			return
		}
		f.Hidden = true
	})

	fs.AddFlagSet(logsFs)
}
