package config

import (
	stderrors "errors"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"kfsim-go/kalman"
	"kfsim-go/logging"
	"kfsim-go/sim"
)

// ErrInvalidParameter marks a configuration or control value rejected at the
// boundary, before it reaches the engine.
var ErrInvalidParameter = stderrors.New("invalid parameter")

const (
	DefaultHTTPPort = 8080
	DefaultUDPPort  = 44333
	DefaultUpdateHz = 10.0
	DefaultSampleHz = 60.0
	DefaultRenderHz = 30.0
	DefaultWidth    = 650
	DefaultHeight   = 400
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Loop     LoopConfig     `yaml:"loop"`
	Log      logging.Config `yaml:"log"`
	Controls sim.Controls   `yaml:"controls"`
	// Seed fixes the noise source; zero seeds from the clock.
	Seed uint64 `yaml:"seed"`
}

type ServerConfig struct {
	HTTPPort  int    `yaml:"httpPort"`
	UDPPort   int    `yaml:"udpPort"` // <= 0 disables the listener
	StaticDir string `yaml:"staticDir"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
}

// LoopConfig sets the three decoupled loop rates, in Hz.
type LoopConfig struct {
	UpdateHz float64 `yaml:"updateHz"`
	SampleHz float64 `yaml:"sampleHz"`
	RenderHz float64 `yaml:"renderHz"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			UDPPort:  DefaultUDPPort,
			Width:    DefaultWidth,
			Height:   DefaultHeight,
		},
		Loop: LoopConfig{
			UpdateHz: DefaultUpdateHz,
			SampleHz: DefaultSampleHz,
			RenderHz: DefaultRenderHz,
		},
		Log:      logging.DefaultConfig(),
		Controls: sim.DefaultControls(),
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	cfg.Controls = syncTimestep(cfg.Controls)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// syncTimestep keeps Controls.Timestep and A consistent when the file sets
// only one of them.
func syncTimestep(c sim.Controls) sim.Controls {
	if c.Matrices.A == kalman.TransitionMatrix(sim.DefaultTimestep) && c.Timestep > 0 {
		c.Matrices.A = kalman.TransitionMatrix(c.Timestep)
		return c
	}
	return c.WithMatrix(sim.MatrixA, c.Matrices.A)
}

// Validate rejects values the engine would otherwise have to clamp.
func (c *Config) Validate() error {
	if c.Loop.UpdateHz <= 0 {
		return errors.Wrapf(ErrInvalidParameter, "loop.updateHz %v must be positive", c.Loop.UpdateHz)
	}
	if c.Loop.SampleHz <= 0 {
		return errors.Wrapf(ErrInvalidParameter, "loop.sampleHz %v must be positive", c.Loop.SampleHz)
	}
	if c.Loop.RenderHz <= 0 {
		return errors.Wrapf(ErrInvalidParameter, "loop.renderHz %v must be positive", c.Loop.RenderHz)
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return errors.Wrapf(ErrInvalidParameter, "server.httpPort %d", c.Server.HTTPPort)
	}
	if c.Server.UDPPort > 65535 {
		return errors.Wrapf(ErrInvalidParameter, "server.udpPort %d", c.Server.UDPPort)
	}
	return ValidateControls(c.Controls)
}

// ValidateControls checks operator-supplied scalar parameters.
func ValidateControls(c sim.Controls) error {
	if !(c.NoiseAmount >= 0) {
		return errors.Wrapf(ErrInvalidParameter, "noiseAmount %v must be non-negative", c.NoiseAmount)
	}
	if !(c.PredictionSeconds >= 0) {
		return errors.Wrapf(ErrInvalidParameter, "predictionSeconds %v must be non-negative", c.PredictionSeconds)
	}
	if !(c.Timestep > 0) {
		return errors.Wrapf(ErrInvalidParameter, "timestep %v must be positive", c.Timestep)
	}
	for _, k := range sim.MatrixKeys {
		if !c.Matrices.Get(k).IsFinite() {
			return errors.Wrapf(ErrInvalidParameter, "matrix %s has non-finite entries", k)
		}
	}
	return nil
}

// ValidateUpdate checks the fields present in a partial controls update.
func ValidateUpdate(u sim.ControlsUpdate) error {
	if u.NoiseAmount != nil && !(*u.NoiseAmount >= 0) {
		return errors.Wrapf(ErrInvalidParameter, "noiseAmount %v must be non-negative", *u.NoiseAmount)
	}
	if u.PredictionSeconds != nil && !(*u.PredictionSeconds >= 0) {
		return errors.Wrapf(ErrInvalidParameter, "predictionSeconds %v must be non-negative", *u.PredictionSeconds)
	}
	if u.Timestep != nil && !(*u.Timestep > 0) {
		return errors.Wrapf(ErrInvalidParameter, "timestep %v must be positive", *u.Timestep)
	}
	if u.Matrices != nil {
		for _, k := range sim.MatrixKeys {
			if !u.Matrices.Get(k).IsFinite() {
				return errors.Wrapf(ErrInvalidParameter, "matrix %s has non-finite entries", k)
			}
		}
	}
	return nil
}
