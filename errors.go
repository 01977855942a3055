package hypertune

// ConfigError reports an invalid search configuration: an unknown
// algorithm, a backend outside the algorithm's compatibility set, or a
// space a backend cannot work on.
type ConfigError struct {
	Algorithm string
	Backend   string
	Field     string
	Reason    string
	Err       error
}

func (e *ConfigError) Error() string {
	msg := "config: "
	if e.Algorithm != "" {
		msg += e.Algorithm
		if e.Backend != "" {
			msg += "/" + e.Backend
		}
		msg += ": "
	}
	if e.Field != "" {
		msg += e.Field + ": "
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }
