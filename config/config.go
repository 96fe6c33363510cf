// Configuration Specification and Management
//
// Grounded on go-kgp's conf.go: a TOML-decoded Conf struct with a
// package-level defaultConfig, an openConf/readConf pair, and a
// debug logger that is pointed at os.Stderr or io.Discard depending
// on the Debug flag.
package config

import (
	"io"
	"log"
	"os"

	"github.com/BurntSushi/toml"
)

// TCPConf configures the client-facing protocol listener.
type TCPConf struct {
	Port     uint `toml:"port"`
	Capacity int  `toml:"capacity"`
	Ping     bool `toml:"ping"`
}

// RatingConf configures the Elo rating update.
type RatingConf struct {
	K int `toml:"k"`
}

// OpsConf configures the operational HTTP/WebSocket surface.
type OpsConf struct {
	Enabled  bool `toml:"enabled"`
	Port     uint `toml:"port"`
	Interval uint `toml:"interval_seconds"`
}

// LedgerConf configures the in-memory game audit trail.
type LedgerConf struct {
	Threads uint `toml:"threads"`
}

// Conf is the complete, TOML-decodable server configuration.
type Conf struct {
	Debug  bool       `toml:"debug"`
	TCP    TCPConf    `toml:"tcp"`
	Rating RatingConf `toml:"rating"`
	Ops    OpsConf    `toml:"ops"`
	Ledger LedgerConf `toml:"ledger"`

	file string
}

// DefaultConfName is the configuration file read when none is given
// on the command line.
const DefaultConfName = "jeux.toml"

// Default is the configuration used when no file is found at
// DefaultConfName and none was explicitly requested.
var Default = Conf{
	Debug: false,
	TCP: TCPConf{
		Port:     0,
		Capacity: 64,
		Ping:     true,
	},
	Rating: RatingConf{
		K: 32,
	},
	Ops: OpsConf{
		Enabled:  true,
		Port:     8080,
		Interval: 5,
	},
	Ledger: LedgerConf{
		Threads: 1,
	},
}

// Debugger is a logger silenced unless Conf.Debug is set; callers
// obtain one with Conf.Logger and write to it unconditionally.
type Debugger = log.Logger

// Logger returns a debug logger writing to os.Stderr if c.Debug is
// set, or discarding output otherwise.
func (c *Conf) Logger() *Debugger {
	out := io.Discard
	if c.Debug {
		out = os.Stderr
	}
	return log.New(out, "[debug] ", log.Ltime|log.Lshortfile|log.Lmicroseconds)
}

// readConf decodes NAME's TOML contents into CONF.
func readConf(name string, conf *Conf) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = toml.NewDecoder(file).Decode(conf)
	conf.file = name
	return err
}

// Load reads the TOML configuration file at NAME, starting from
// Default so that any field the file omits keeps its default value.
// A missing file at the literal DefaultConfName is not an error; the
// caller gets Default back unchanged.
func Load(name string) (*Conf, error) {
	conf := Default
	err := readConf(name, &conf)
	if err != nil {
		if os.IsNotExist(err) && name == DefaultConfName {
			return &conf, nil
		}
		return nil, err
	}
	return &conf, nil
}

// Dump writes CONF to W in TOML form, for the -dump-config flag.
func Dump(w io.Writer, conf *Conf) error {
	return toml.NewEncoder(w).Encode(conf)
}
