package config

import "time"

// Duration is a time.Duration that can be decoded from a TOML string, e.g.
// timeout = "5m".
type Duration struct {
	time.Duration
}

var _ interface {
	UnmarshalText([]byte) error
	MarshalText() ([]byte, error)
} = (*Duration)(nil)

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
