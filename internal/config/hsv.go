package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// HSV holds the color windows used to refine person/vehicle detections into
// their work-crew subclasses. Hue is degrees [0,360), saturation and value
// are fractions [0,1]. Coverage thresholds are fractions of the sampled
// region.
type HSV struct {
	Vest struct {
		HueLo       float64 `yaml:"hue_lo"`
		HueHi       float64 `yaml:"hue_hi"`
		SatMin      float64 `yaml:"sat_min"`
		ValMin      float64 `yaml:"val_min"`
		MinCoverage float64 `yaml:"min_coverage"`
	} `yaml:"vest"`

	VehicleYellow struct {
		HueLo       float64 `yaml:"hue_lo"`
		HueHi       float64 `yaml:"hue_hi"`
		SatMin      float64 `yaml:"sat_min"`
		ValMin      float64 `yaml:"val_min"`
		MinCoverage float64 `yaml:"min_coverage"`
	} `yaml:"vehicle_yellow"`

	VehicleBlack struct {
		ValMax      float64 `yaml:"val_max"`
		MinCoverage float64 `yaml:"min_coverage"`
	} `yaml:"vehicle_black"`
}

// DefaultHSV returns the windows calibrated against apron footage.
func DefaultHSV() HSV {
	var h HSV
	h.Vest.HueLo = 20
	h.Vest.HueHi = 65
	h.Vest.SatMin = 0.4
	h.Vest.ValMin = 0.5
	h.Vest.MinCoverage = 0.10

	h.VehicleYellow.HueLo = 40
	h.VehicleYellow.HueHi = 70
	h.VehicleYellow.SatMin = 0.4
	h.VehicleYellow.ValMin = 0.4
	h.VehicleYellow.MinCoverage = 0.05

	h.VehicleBlack.ValMax = 0.15
	h.VehicleBlack.MinCoverage = 0.01
	return h
}

// LoadHSV reads an HSV window file; a missing path returns the defaults.
func LoadHSV(path string) (HSV, error) {
	h := DefaultHSV()
	if path == "" {
		return h, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return h, fmt.Errorf("read hsv windows %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("parse hsv windows %s: %w", path, err)
	}
	return h, nil
}

// WatchHSV monitors the HSV window file and calls onChange with each
// successful reload. Falls back to a 60s polling loop when fsnotify cannot
// watch the file. A reload that fails to parse is logged and skipped.
func WatchHSV(ctx context.Context, path string, onChange func(HSV)) {
	if path == "" {
		return
	}

	reload := func() {
		h, err := LoadHSV(path)
		if err != nil {
			log.Printf("[ERROR] HSV Watcher: reload failed: %v", err)
			return
		}
		log.Printf("[INFO] HSV Watcher: windows reloaded from %s", path)
		onChange(h)
	}

	watcher, err := fsnotify.NewWatcher()
	usePolling := false
	if err != nil {
		log.Printf("[ERROR] HSV Watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(path); err != nil {
		log.Printf("[ERROR] HSV Watcher: cannot watch %s (%v), falling back to polling", path, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						// Editors often write in two events; let the file settle.
						time.Sleep(100 * time.Millisecond)
						reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("[ERROR] HSV Watcher: %v", err)
				}
			}
		}()
		return
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		var lastMod time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if info.ModTime().After(lastMod) {
					lastMod = info.ModTime()
					reload()
				}
			}
		}
	}()
}
