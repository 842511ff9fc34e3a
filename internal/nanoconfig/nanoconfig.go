// Package nanoconfig is the TOML configuration loader, mirroring
// cmd/geth's loadConfig(path, &cfg) pattern over
// github.com/BurntSushi/toml, generalized from one flat gethConfig
// to one struct per component this repo configures.
package nanoconfig

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gonano/nanod/internal/bootstrap"
	"github.com/gonano/nanod/internal/election"
	"github.com/gonano/nanod/internal/netinfo"
	"github.com/gonano/nanod/internal/onlinereps"
)

// BlockProcessorConfig holds the block processor's tunable defaults.
// Not every field is wired to internal/blockprocessor: its fair queue
// is built with a default priority of 1 and no per-origin size limit.
// The struct still carries the full enumerated surface so operators
// can set it.
type BlockProcessorConfig struct {
	MaxPeerQueue      int           `toml:"max_peer_queue"`
	MaxSystemQueue    int           `toml:"max_system_queue"`
	PriorityLive      int           `toml:"priority_live"`
	PriorityBootstrap int           `toml:"priority_bootstrap"`
	PriorityLocal     int           `toml:"priority_local"`
	BatchMaxTime      time.Duration `toml:"batch_max_time"`
	FullSize          int           `toml:"full_size"`
	BatchSize         int           `toml:"batch_size"` // 0 = auto
}

func defaultBlockProcessorConfig() BlockProcessorConfig {
	return BlockProcessorConfig{
		MaxPeerQueue:      128,
		MaxSystemQueue:    16384,
		PriorityLive:      1,
		PriorityBootstrap: 8,
		PriorityLocal:     16,
		BatchMaxTime:      500 * time.Millisecond,
		FullSize:          65536,
		BatchSize:         0,
	}
}

// VoteCacheConfig holds the vote cache's defaults, consumed directly
// by internal/votecache.New(MaxSize, MaxVoters, AgeCutoff).
type VoteCacheConfig struct {
	MaxSize   int           `toml:"max_size"`
	MaxVoters int           `toml:"max_voters"`
	AgeCutoff time.Duration `toml:"age_cutoff"`
}

func defaultVoteCacheConfig() VoteCacheConfig {
	return VoteCacheConfig{MaxSize: 65536, MaxVoters: 64, AgeCutoff: 15 * time.Minute}
}

// Config is the top-level TOML document, one table per component —
// cmd/geth's gethConfig generalized from {Eth, Shh, Node} to this
// repo's component set.
type Config struct {
	DataDir string `toml:"datadir"`

	BlockProcessor BlockProcessorConfig    `toml:"BlockProcessor"`
	Election       election.Config        `toml:"ActiveElections"`
	VoteCache      VoteCacheConfig         `toml:"VoteCache"`
	Bootstrap      bootstrap.Config        `toml:"Bootstrap"`
	NetInfo        netinfo.Config          `toml:"NetInfo"`
	OnlineReps     onlinereps.Config       `toml:"OnlineReps"`
}

// DefaultConfig mirrors every sub-package's own DefaultConfig(), the
// same "defaults live next to the type, TOML only overrides" split
// cmd/geth uses between gethConfig zero values and eth.DefaultConfig.
func DefaultConfig() Config {
	return Config{
		DataDir:        "./nanod-data",
		BlockProcessor: defaultBlockProcessorConfig(),
		Election:       election.DefaultConfig(),
		VoteCache:      defaultVoteCacheConfig(),
		Bootstrap:      bootstrap.DefaultConfig(),
		NetInfo:        netinfo.DefaultConfig(),
		OnlineReps:     onlinereps.DefaultConfig(),
	}
}

// LoadConfig reads a TOML document at path into cfg, starting from
// DefaultConfig() and letting the file override only the fields it
// sets — cmd/geth's loadConfig does the same (cfg starts from
// gethConfig{Eth: eth.DefaultConfig()} before Decode).
func LoadConfig(path string, cfg *Config) error {
	*cfg = DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = toml.NewDecoder(f).Decode(cfg)
	return err
}

// WriteConfig renders cfg as a TOML document at path, for `nanod
// dumpconfig`-style commands (cmd/geth's `dumpconfig`).
func WriteConfig(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
