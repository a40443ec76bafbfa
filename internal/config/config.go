// Package config loads the YAML configuration for the camera agent and the
// dispatch server. Secrets (database DSN, Redis, NATS) can be overridden by
// environment so that files checked into deployments stay credential-free.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent configures one on-camera detection agent.
type Agent struct {
	Camera struct {
		ID     string `yaml:"id"`
		Device string `yaml:"device"`
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
		FPS    int    `yaml:"fps"`
	} `yaml:"camera"`

	Server struct {
		Host      string `yaml:"host"`
		EventPort int    `yaml:"event_port"`
		VideoPort int    `yaml:"video_port"`
	} `yaml:"server"`

	Detect struct {
		ModelPath     string  `yaml:"model_path"`
		Confidence    float64 `yaml:"confidence"`
		MaxArea       float64 `yaml:"max_area"`
		LostThreshold int     `yaml:"lost_threshold"`
		HSVPath       string  `yaml:"hsv_path"`
	} `yaml:"detect"`

	Rescue struct {
		MaxLevel int `yaml:"max_level"`
	} `yaml:"rescue"`

	Stream struct {
		Quality     int `yaml:"quality"`
		MaxDatagram int `yaml:"max_datagram"`
	} `yaml:"stream"`
}

// Server configures the dispatch server.
type Server struct {
	Listen struct {
		Ingest   string `yaml:"ingest"`
		Operator string `yaml:"operator"`
		Bird     string `yaml:"bird"`
		Pilot    string `yaml:"pilot"`
		VideoIn  string `yaml:"video_in"`
		VideoOut string `yaml:"video_out"`
		HTTP     string `yaml:"http"`
	} `yaml:"listen"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Dispatch struct {
		FrameBuffer   int           `yaml:"frame_buffer"`
		MaxRenderGap  int           `yaml:"max_render_gap"`
		GateTTL       time.Duration `yaml:"gate_ttl"`
		CropDir       string        `yaml:"crop_dir"`
		CropQuality   int           `yaml:"crop_quality"`
		RunwayHold    time.Duration `yaml:"runway_hold"`
		RunwayQuiet   time.Duration `yaml:"runway_quiet"`
		MinConfidence float64       `yaml:"min_confidence"`
	} `yaml:"dispatch"`
}

// LoadAgent reads an agent config file and applies defaults.
func LoadAgent(path string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Agent{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if cfg.Camera.ID == "" {
		return nil, fmt.Errorf("config %s: camera.id is required", path)
	}
	return cfg, nil
}

func (c *Agent) applyDefaults() {
	if c.Camera.Width == 0 {
		c.Camera.Width = 960
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = 720
	}
	if c.Camera.FPS == 0 {
		c.Camera.FPS = 15
	}
	if c.Server.EventPort == 0 {
		c.Server.EventPort = 5000
	}
	if c.Server.VideoPort == 0 {
		c.Server.VideoPort = 4000
	}
	if c.Detect.Confidence == 0 {
		c.Detect.Confidence = 0.25
	}
	if c.Detect.MaxArea == 0 {
		c.Detect.MaxArea = 0.5
	}
	if c.Detect.LostThreshold == 0 {
		c.Detect.LostThreshold = 20
	}
	if c.Rescue.MaxLevel == 0 {
		c.Rescue.MaxLevel = 5
	}
	if c.Stream.Quality == 0 {
		c.Stream.Quality = 90
	}
	if c.Stream.MaxDatagram == 0 {
		c.Stream.MaxDatagram = 65000
	}
}

// LoadServer reads the server config file, applies defaults, then applies
// environment overrides: FALCON_DB_DSN, FALCON_REDIS_ADDR, FALCON_REDIS_PASSWORD,
// FALCON_NATS_URL.
func LoadServer(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := &Server{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Server) applyDefaults() {
	if c.Listen.Ingest == "" {
		c.Listen.Ingest = ":5000"
	}
	if c.Listen.Operator == "" {
		c.Listen.Operator = ":5100"
	}
	if c.Listen.Bird == "" {
		c.Listen.Bird = ":5200"
	}
	if c.Listen.Pilot == "" {
		c.Listen.Pilot = ":5300"
	}
	if c.Listen.VideoIn == "" {
		c.Listen.VideoIn = ":4000"
	}
	if c.Listen.VideoOut == "" {
		c.Listen.VideoOut = "127.0.0.1:4100"
	}
	if c.Listen.HTTP == "" {
		c.Listen.HTTP = ":8080"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.Dispatch.FrameBuffer == 0 {
		c.Dispatch.FrameBuffer = 30
	}
	if c.Dispatch.MaxRenderGap == 0 {
		c.Dispatch.MaxRenderGap = 5
	}
	if c.Dispatch.GateTTL == 0 {
		c.Dispatch.GateTTL = 30 * time.Second
	}
	if c.Dispatch.CropDir == "" {
		c.Dispatch.CropDir = "img"
	}
	if c.Dispatch.CropQuality == 0 {
		c.Dispatch.CropQuality = 90
	}
	if c.Dispatch.RunwayHold == 0 {
		c.Dispatch.RunwayHold = 3 * time.Second
	}
	if c.Dispatch.RunwayQuiet == 0 {
		c.Dispatch.RunwayQuiet = 10 * time.Second
	}
	if c.Dispatch.MinConfidence == 0 {
		c.Dispatch.MinConfidence = 0.5
	}
}

func (c *Server) applyEnv() {
	if v := os.Getenv("FALCON_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("FALCON_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("FALCON_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("FALCON_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}
