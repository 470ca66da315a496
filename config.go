package structchunk

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Store types accepted by StoreConfig.
const (
	StoreMemory = "memory"
	StoreLocal  = "local"
	StoreBolt   = "bolt"
	StoreMinio  = "minio"
)

// StoreConfig says where the blocks of a run are written.
type StoreConfig struct {
	Type string `json:"type"`
	// Path is the directory of a local store or the file of a bolt store.
	Path string `json:"path,omitempty"`

	Endpoint  string `json:"endpoint,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
	Secure    bool   `json:"secure,omitempty"`
}

func (c StoreConfig) Validate() error {
	switch c.Type {
	case StoreMemory:
	case StoreLocal, StoreBolt:
		if c.Path == "" {
			return fmt.Errorf("%s store needs a path", c.Type)
		}
	case StoreMinio:
		if c.Endpoint == "" || c.Bucket == "" {
			return fmt.Errorf("minio store needs an endpoint and a bucket")
		}
	default:
		return fmt.Errorf("unsupported store type %q", c.Type)
	}
	return nil
}

// Config drives a sparse benchmark run.
type Config struct {
	// ChunkDims is the chunk shape as "RxC", in units of ChunkUnit elements.
	ChunkDims string `json:"chunk_dims"`
	ChunkUnit uint64 `json:"chunk_unit"`
	// MaxPercent is the highest density level; levels run from 1.
	MaxPercent int `json:"max_percent"`
	// Policy is the numeric selection policy, 1 to 3.
	Policy int `json:"policy"`
	// DataRandom is 1 for random values and 0 for compressible values.
	DataRandom int    `json:"d_random"`
	Verbose    int    `json:"verbose"`
	Seed       uint64 `json:"seed"`

	Compressor      CompressionMeta `json:"compressor"`
	SelectionFormat string          `json:"selection_format"`
	Verify          bool            `json:"verify"`
	Workers         int             `json:"workers"`
	Store           StoreConfig     `json:"store"`
}

func DefaultConfig() Config {
	return Config{
		ChunkDims:       "10x100",
		ChunkUnit:       1024,
		MaxPercent:      10,
		Policy:          int(ScatteredRows),
		DataRandom:      1,
		Seed:            2,
		Compressor:      DefaultCompression,
		SelectionFormat: FormatBlocks.String(),
		Workers:         1,
		Store:           StoreConfig{Type: StoreMemory},
	}
}

// LoadConfig reads a YAML or JSON config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	d, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(d, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Extent is the chunk extent in elements.
func (c Config) Extent() (Extent, error) {
	e, err := ParseExtent(c.ChunkDims)
	if err != nil {
		return nil, err
	}
	unit := max(c.ChunkUnit, 1)
	for i := range e {
		if e[i] > MaxChunkElements/unit {
			return nil, fmt.Errorf("%w: %q in units of %d exceeds %d elements", ErrInvalidExtent, c.ChunkDims, unit, uint64(MaxChunkElements))
		}
		e[i] *= unit
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (c Config) Validate() error {
	e, err := ParseExtent(c.ChunkDims)
	if err != nil {
		return err
	}
	if len(e) != 2 {
		return fmt.Errorf("%w: chunk dims must be RxC. got %q", ErrInvalidExtent, c.ChunkDims)
	}
	if _, err := c.Extent(); err != nil {
		return err
	}
	if c.MaxPercent < 1 || c.MaxPercent > 20 {
		return fmt.Errorf("max percent must be between 1 and 20. got %d", c.MaxPercent)
	}
	if _, err := ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.DataRandom != 0 && c.DataRandom != 1 {
		return fmt.Errorf("data generation flag can only be 0 (compressible data) or 1 (random). got %d", c.DataRandom)
	}
	if c.Verbose != 0 && c.Verbose != 1 {
		return fmt.Errorf("verbose flag can only be 0 or 1. got %d", c.Verbose)
	}
	if err := c.Compressor.Validate(); err != nil {
		return err
	}
	if _, err := ParseSelectionFormat(c.SelectionFormat); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1. got %d", c.Workers)
	}
	return c.Store.Validate()
}

// VLConfig drives a variable-length benchmark run.
type VLConfig struct {
	NElements  int             `json:"n_elements"`
	MaxLength  int             `json:"max_length"`
	DataRandom int             `json:"d_random"`
	Verbose    int             `json:"verbose"`
	Seed       uint64          `json:"seed"`
	Compressor CompressionMeta `json:"compressor"`
	Verify     bool            `json:"verify"`
	Store      StoreConfig     `json:"store"`
}

func DefaultVLConfig() VLConfig {
	return VLConfig{
		NElements:  1000,
		MaxLength:  100,
		DataRandom: 1,
		Seed:       20,
		Compressor: DefaultCompression,
		Store:      StoreConfig{Type: StoreMemory},
	}
}

// LoadVLConfig reads a YAML or JSON config file over the defaults.
func LoadVLConfig(path string) (VLConfig, error) {
	cfg := DefaultVLConfig()
	d, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(d, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func (c VLConfig) Validate() error {
	if c.NElements < 1 {
		return fmt.Errorf("the number of elements is invalid. got %d", c.NElements)
	}
	if c.MaxLength < 1 {
		return fmt.Errorf("the maximal length of variable-length element is invalid. got %d", c.MaxLength)
	}
	if c.DataRandom != 0 && c.DataRandom != 1 {
		return fmt.Errorf("data generation flag can only be 0 (compressible data) or 1 (random). got %d", c.DataRandom)
	}
	if c.Verbose != 0 && c.Verbose != 1 {
		return fmt.Errorf("verbose flag can only be 0 or 1. got %d", c.Verbose)
	}
	if err := c.Compressor.Validate(); err != nil {
		return err
	}
	return c.Store.Validate()
}
