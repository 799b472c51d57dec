// Package ppg wires together the PPG engine, OTA dispatcher, and PI
// intake server into a running gateway: HTTP intake on one side, a WSP
// dispatch sink on the other, bridged by the session/push state
// machines in between.
package ppg

// Config is the gateway's runtime configuration, populated from flags
// (via cobra/pflag) layered through konf.
type Config struct {
	// BearerboxAddr is passed to bearerbox.Binding.Set; "localhost"
	// resolves to this host's own non-loopback address.
	BearerboxAddr string `konf:"bearerbox_addr"`

	// ListenAddr is the PI-facing HTTP intake address, e.g. ":8080".
	ListenAddr string `konf:"listen_addr"`

	// BearerPort is this PPG's own WSP bearer port, advertised as the
	// local half of every AddrTuple and packed into SIA contact points
	// for connection-oriented session requests.
	BearerPort int `konf:"bearer_port"`

	// SenderOfficialName/SenderProductName/SenderVersion populate the
	// sender-name attribute of every PAP response.
	SenderOfficialName string `konf:"sender_official_name"`
	SenderProductName  string `konf:"sender_product_name"`
	SenderVersion      string `konf:"sender_version"`

	// WMLCompilerPath/SICompilerPath name external WML/SI compiler
	// plugins. cmd/ppgd does not read them; it always wires no-op
	// passthrough compilers.
	WMLCompilerPath string `konf:"wml_compiler_path"`
	SICompilerPath  string `konf:"si_compiler_path"`

	// AccessLogPath, when non-empty, enables a rotating HTTP access
	// log at this path.
	AccessLogPath string `konf:"access_log_path"`

	// DeliveryTick, when non-empty, is parsed as a duration (e.g. "30s")
	// and enables the TOO_EARLY re-evaluation behavior change at that
	// interval.
	DeliveryTick string `konf:"delivery_tick"`
}

// DefaultConfig returns the configuration used when no flag overrides a
// value.
func DefaultConfig() Config {
	return Config{
		BearerboxAddr:      "localhost",
		ListenAddr:         ":8080",
		BearerPort:         2948,
		SenderOfficialName: "Kannel PPG",
		SenderProductName:  "ppgd",
		SenderVersion:      "dev",
	}
}
