package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aligator/sdfat"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// config can be loaded from a yaml file. Flags given on the command line win.
type config struct {
	Image    string `yaml:"image"`
	Offset   int64  `yaml:"offset"`
	LogLevel string `yaml:"log_level"`
	// Clock is "system" to stamp entries with the current time or "none" for the fixed default date.
	Clock string `yaml:"clock"`
}

func defaultConfig() config {
	return config{
		LogLevel: "info",
		Clock:    "system",
	}
}

func loadConfig(path string, cfg *config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c config) options(log logrus.FieldLogger) ([]sdfat.Option, error) {
	opts := []sdfat.Option{sdfat.WithLogger(log)}

	switch c.Clock {
	case "system", "":
		opts = append(opts, sdfat.WithClock(time.Now))
	case "none":
	default:
		return nil, fmt.Errorf("unknown clock %q, use system or none", c.Clock)
	}
	return opts, nil
}

// parseSize accepts a byte count with an optional k, m or g suffix.
func parseSize(s string) (int64, error) {
	ss := strings.TrimSpace(strings.ToLower(s))
	if ss == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	switch {
	case strings.HasSuffix(ss, "k"):
		mult = 1 << 10
		ss = strings.TrimSuffix(ss, "k")
	case strings.HasSuffix(ss, "m"):
		mult = 1 << 20
		ss = strings.TrimSuffix(ss, "m")
	case strings.HasSuffix(ss, "g"):
		mult = 1 << 30
		ss = strings.TrimSuffix(ss, "g")
	}

	v, err := strconv.ParseInt(ss, 10, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative size %s", s)
	}
	return v * mult, nil
}

func parseFATType(s string) (sdfat.FATType, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return 0, nil
	case "fat12":
		return sdfat.FAT12, nil
	case "fat16":
		return sdfat.FAT16, nil
	case "fat32":
		return sdfat.FAT32, nil
	default:
		return 0, fmt.Errorf("unknown type %q, use fat12, fat16 or fat32", s)
	}
}
