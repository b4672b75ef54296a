package options

import (
	"fmt"
	"strconv"

	"vfdgateway/pkg/planner"
)

func Validate(o *Options) []error {
	var errs []error
	if err := o.BaseOptions.ValidateAndApply(); err != nil {
		errs = append(errs, err)
	}
	if port, err := strconv.Atoi(o.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("--port %q must be a number between 1 and 65535", o.Port))
	}
	if o.PollInterval.Duration <= 0 {
		errs = append(errs, fmt.Errorf("--poll-interval must be positive, got %s", o.PollInterval.Duration))
	}
	if o.IdleTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("--idle-timeout must be positive, got %s", o.IdleTimeout.Duration))
	}
	if o.ReadingRetention.Duration < 0 {
		errs = append(errs, fmt.Errorf("--reading-retention must not be negative, got %s", o.ReadingRetention.Duration))
	}
	if o.Planner.MaxBatchSize > planner.DefaultMaxBatchSize {
		errs = append(errs, fmt.Errorf("--planner-max-batch-size must not exceed %d registers", planner.DefaultMaxBatchSize))
	}
	if (len(o.CertFile) == 0) != (len(o.KeyFile) == 0) {
		errs = append(errs, fmt.Errorf("--tls-cert-file and --tls-private-key-file must be set together"))
	}
	return errs
}
