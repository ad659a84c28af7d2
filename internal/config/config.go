// Package config loads taskstack daemon configuration.
//
// Configuration comes from hardcoded defaults, then an optional YAML file,
// then TASKSTACK_* environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/taskstack/internal/collision"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/logging"
	"github.com/fyrsmithlabs/taskstack/internal/loop"
	"github.com/fyrsmithlabs/taskstack/internal/solver"
	"github.com/fyrsmithlabs/taskstack/internal/telemetry"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config holds the complete daemon configuration.
type Config struct {
	Server    ServerConfig         `koanf:"server"`
	Loop      loop.Config          `koanf:"loop"`
	Solver    solver.Config        `koanf:"solver"`
	Avoidance AvoidanceConfig      `koanf:"avoidance"`
	NATS      NATSConfig           `koanf:"nats"`
	Stack     StackConfig          `koanf:"stack"`
	Robot     RobotConfig          `koanf:"robot"`
	Obstacles []collision.Obstacle `koanf:"obstacles"`
	Logging   logging.Config       `koanf:"logging"`
	Telemetry telemetry.Config     `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AvoidanceConfig selects the collision checker behind obstacle avoidance
// tasks.
type AvoidanceConfig struct {
	// Source is "local" (the configured obstacles, evaluated in process) or
	// "nats" (a remote checker answering on the gradients subject).
	Source       string   `koanf:"source"`
	SafetyMargin float64  `koanf:"safety_margin"`
	MaxRange     float64  `koanf:"max_range"`
	Timeout      Duration `koanf:"timeout"`
}

// NATSConfig configures the message bus.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Token   Secret `koanf:"token"`
	Prefix  string `koanf:"prefix"`

	// Embedded starts an in-process nats-server on EmbeddedPort and connects
	// to it instead of URL.
	Embedded     bool `koanf:"embedded"`
	EmbeddedPort int  `koanf:"embedded_port"`

	// ServeSDF answers gradient requests from the configured obstacles.
	ServeSDF bool `koanf:"serve_sdf"`

	// Visualize publishes render requests. PublishRate limits messages per
	// second per subject; zero disables limiting.
	Visualize    bool    `koanf:"visualize"`
	PublishRate  float64 `koanf:"publish_rate"`
	PublishBurst int     `koanf:"publish_burst"`
}

// StackConfig locates the task stack manifest applied at startup.
type StackConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"`
}

// RobotConfig describes the simulated robot.
type RobotConfig struct {
	Root       string       `koanf:"root"`
	Links      []LinkConfig `koanf:"links"`
	Initial    []float64    `koanf:"initial"`
	Controlled []bool       `koanf:"controlled"`
}

// LinkConfig is one link of the robot tree. Position is the xyz offset from
// the parent; RPY holds rotations about X, Y and Z composed as Rx*Ry*Rz.
type LinkConfig struct {
	Name     string    `koanf:"name"`
	Parent   string    `koanf:"parent"`
	Joint    string    `koanf:"joint"`
	Axis     []float64 `koanf:"axis"`
	Position []float64 `koanf:"position"`
	RPY      []float64 `koanf:"rpy"`
}

// Tree builds the kinematic tree. Without links the four-joint demo arm is
// used.
func (r RobotConfig) Tree() (*kinematics.Tree, error) {
	if len(r.Links) == 0 {
		return kinematics.NewTree(r.Root, kinematics.TestArmLinks())
	}
	links := make([]kinematics.Link, 0, len(r.Links))
	for _, lc := range r.Links {
		l, err := lc.link()
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return kinematics.NewTree(r.Root, links)
}

func (lc LinkConfig) link() (kinematics.Link, error) {
	joint, err := kinematics.ParseJointType(lc.Joint)
	if err != nil {
		return kinematics.Link{}, fmt.Errorf("link %q: %w", lc.Name, err)
	}
	axis, err := triple(lc.Axis, "axis", lc.Name)
	if err != nil {
		return kinematics.Link{}, err
	}
	pos, err := triple(lc.Position, "position", lc.Name)
	if err != nil {
		return kinematics.Link{}, err
	}
	rpy, err := triple(lc.RPY, "rpy", lc.Name)
	if err != nil {
		return kinematics.Link{}, err
	}
	return kinematics.Link{
		Name:   lc.Name,
		Parent: lc.Parent,
		Joint:  joint,
		Axis:   axis,
		Origin: kinematics.Pose{Position: pos, Rotation: kinematics.FromEulerXYZ(rpy.X, rpy.Y, rpy.Z)},
	}, nil
}

func triple(v []float64, what, link string) (r3.Vec, error) {
	switch len(v) {
	case 0:
		return r3.Vec{}, nil
	case 3:
		return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
	}
	return r3.Vec{}, fmt.Errorf("%w: link %q %s needs 3 values, got %d", kinematics.ErrInvalidTree, link, what, len(v))
}

// Default returns the configuration used for every field not set by the
// file or the environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9190,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Loop:   loop.Config{RateHz: loop.DefaultRateHz},
		Solver: solver.DefaultConfig(),
		Avoidance: AvoidanceConfig{
			Source:       "local",
			SafetyMargin: 0.05,
			MaxRange:     1.0,
			Timeout:      Duration(collision.DefaultTimeout),
		},
		NATS: NATSConfig{
			URL:          "nats://127.0.0.1:4222",
			Prefix:       "taskstack",
			EmbeddedPort: 4222,
			PublishRate:  10,
			PublishBurst: 5,
		},
		Robot:     RobotConfig{Root: "world"},
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Loop.RateHz <= 0 {
		return fmt.Errorf("loop rate_hz must be positive, got %g", c.Loop.RateHz)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}

	switch c.Avoidance.Source {
	case "local":
	case "nats":
		if !c.NATS.Enabled {
			return errors.New("avoidance source nats requires nats.enabled")
		}
	default:
		return fmt.Errorf("avoidance source must be local or nats, got %q", c.Avoidance.Source)
	}
	if c.Avoidance.SafetyMargin < 0 {
		return errors.New("avoidance safety_margin must be >= 0")
	}
	if c.Avoidance.MaxRange < 0 {
		return errors.New("avoidance max_range must be >= 0")
	}

	if c.NATS.Enabled {
		if c.NATS.Prefix == "" {
			return errors.New("nats prefix is required")
		}
		if !c.NATS.Embedded && c.NATS.URL == "" {
			return errors.New("nats url is required unless embedded")
		}
		if c.NATS.Embedded && (c.NATS.EmbeddedPort < -1 || c.NATS.EmbeddedPort > 65535) {
			return fmt.Errorf("invalid nats embedded_port: %d", c.NATS.EmbeddedPort)
		}
	}
	if c.Stack.Watch && c.Stack.Path == "" {
		return errors.New("stack watch requires stack path")
	}

	tree, err := c.Robot.Tree()
	if err != nil {
		return fmt.Errorf("robot: %w", err)
	}
	if n := len(c.Robot.Initial); n != 0 && n != tree.NumJoints() {
		return fmt.Errorf("robot initial has %d positions for %d joints", n, tree.NumJoints())
	}
	if n := len(c.Robot.Controlled); n != 0 && n != tree.NumJoints() {
		return fmt.Errorf("robot controlled has %d entries for %d joints", n, tree.NumJoints())
	}
	if _, err := collision.NewField(c.Robot.Root, c.Avoidance.MaxRange, c.Obstacles); err != nil {
		return fmt.Errorf("obstacles: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}
