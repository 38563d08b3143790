package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Postgres struct {
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		User        string `yaml:"user"`
		Password    string `yaml:"password"`
		Database    string `yaml:"database"`
		Slot        string `yaml:"slot"`
		Publication string `yaml:"publication"`
	} `yaml:"postgres"`

	Tables []struct {
		Schema string `yaml:"schema"`
		Name   string `yaml:"name"`
	} `yaml:"tables"`

	Iceberg struct {
		// Path is the warehouse root on the local filesystem; ignored
		// when an S3 bucket is configured.
		Path string `yaml:"path"`
		S3   struct {
			Bucket   string `yaml:"bucket"`
			Prefix   string `yaml:"prefix"`
			Region   string `yaml:"region"`
			Endpoint string `yaml:"endpoint"`
		} `yaml:"s3"`
	} `yaml:"iceberg"`

	Checkpoint struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"checkpoint"`

	Proxy struct {
		Port int `yaml:"port"`
	} `yaml:"proxy"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Checkpoint.Interval <= 0 {
		cfg.Checkpoint.Interval = 10 * time.Second
	}

	return &cfg, nil
}
