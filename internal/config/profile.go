package config

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// Flag names that profiles can override. A profile value is ignored when
// the corresponding flag was set on the command line.
const (
	FlagMinSize         = "min-size"
	FlagNoAlign         = "no-align"
	FlagThreshold       = "threshold"
	FlagWindow          = "window"
	FlagWorkers         = "workers"
	FlagQueue           = "queue"
	FlagFollowSymlinks  = "follow-symlinks"
	FlagOneFileSystem   = "one-file-system"
	FlagExclude         = "exclude"
	FlagNoSniff         = "no-sniff"
	FlagShowKnown       = "show-known"
	FlagKnownType       = "known-type"
	FlagNoFingerprint   = "no-fingerprint"
	FlagProgress        = "progress"
	FlagRelativePaths   = "relative-paths"
	FlagReport          = "report"
	FlagSave            = "save"
	FlagJSON            = "json"
	FlagOutput          = "output"
	FlagVerbose         = "verbose"
	FlagJSONLogs        = "json-logs"
	FlagConfig          = "config"
	FlagDBDir           = "db-dir"
)

// Profile holds optional scan settings from the configuration file.
// Unset fields leave the current setting alone.
type Profile struct {
	// MinSize is a human-readable size such as "10MiB" or "512KB".
	MinSize string `yaml:"minSize,omitempty"`

	// RequireSectorAlignment toggles the sector-size check.
	RequireSectorAlignment *bool `yaml:"requireSectorAlignment,omitempty"`

	// Threshold is the entropy threshold.
	Threshold *float32 `yaml:"threshold,omitempty"`

	// Window is a human-readable sample window size.
	Window string `yaml:"window,omitempty"`

	// Workers is the number of evaluator workers.
	Workers int `yaml:"workers,omitempty"`

	// Queue is the work queue capacity.
	Queue int `yaml:"queue,omitempty"`

	// FollowSymlinks descends into symlinked directories.
	FollowSymlinks *bool `yaml:"followSymlinks,omitempty"`

	// OneFileSystem keeps traversal on one device.
	OneFileSystem *bool `yaml:"oneFileSystem,omitempty"`

	// Exclude lists glob patterns for base names to skip.
	Exclude []string `yaml:"exclude,omitempty"`

	// Sniff toggles magic-byte type detection.
	Sniff *bool `yaml:"sniff,omitempty"`

	// ShowKnown streams identified types instead of hiding them.
	ShowKnown *bool `yaml:"showKnown,omitempty"`

	// KnownTypes limits suppression to these MIME prefixes.
	KnownTypes []string `yaml:"knownTypes,omitempty"`
}

// File represents the structure of the profile file.
type File struct {
	// Defaults apply to every root.
	Defaults Profile `yaml:"defaults,omitempty"`

	// Roots maps directories to their profile. Keys are compared after
	// filepath.Clean.
	Roots map[string]Profile `yaml:"roots,omitempty"`
}

// ProfileFor returns the profile for root: the defaults overridden by the
// matching root entry, if any.
func (cf *File) ProfileFor(root string) Profile {
	result := cf.Defaults

	clean := filepath.Clean(root)
	for key, p := range cf.Roots {
		if filepath.Clean(key) == clean {
			result = merge(result, p)
			break
		}
	}
	return result
}

// merge returns base with every field set in override replaced.
func merge(base, override Profile) Profile {
	if override.MinSize != "" {
		base.MinSize = override.MinSize
	}
	if override.RequireSectorAlignment != nil {
		base.RequireSectorAlignment = override.RequireSectorAlignment
	}
	if override.Threshold != nil {
		base.Threshold = override.Threshold
	}
	if override.Window != "" {
		base.Window = override.Window
	}
	if override.Workers != 0 {
		base.Workers = override.Workers
	}
	if override.Queue != 0 {
		base.Queue = override.Queue
	}
	if override.FollowSymlinks != nil {
		base.FollowSymlinks = override.FollowSymlinks
	}
	if override.OneFileSystem != nil {
		base.OneFileSystem = override.OneFileSystem
	}
	if len(override.Exclude) > 0 {
		base.Exclude = override.Exclude
	}
	if override.Sniff != nil {
		base.Sniff = override.Sniff
	}
	if override.ShowKnown != nil {
		base.ShowKnown = override.ShowKnown
	}
	if len(override.KnownTypes) > 0 {
		base.KnownTypes = override.KnownTypes
	}
	return base
}

// validate checks that every size in the file parses.
func (cf *File) validate() error {
	profiles := map[string]Profile{"defaults": cf.Defaults}
	for k, p := range cf.Roots {
		profiles[k] = p
	}
	for name, p := range profiles {
		if p.MinSize != "" {
			if _, err := ParseSize(p.MinSize); err != nil {
				return fmt.Errorf("%s: minSize: %w", name, err)
			}
		}
		if p.Window != "" {
			if _, err := ParseSize(p.Window); err != nil {
				return fmt.Errorf("%s: window: %w", name, err)
			}
		}
	}
	return nil
}

// ApplyProfile copies the profile's settings into c. changed reports
// whether a flag was set on the command line; such settings are kept.
func (c *Config) ApplyProfile(p Profile, changed func(flag string) bool) error {
	if changed == nil {
		changed = func(string) bool { return false }
	}

	if p.MinSize != "" && !changed(FlagMinSize) {
		n, err := ParseSize(p.MinSize)
		if err != nil {
			return fmt.Errorf("minSize: %w", err)
		}
		c.MinFileSize = n
	}
	if p.RequireSectorAlignment != nil && !changed(FlagNoAlign) {
		c.RequireSectorAlignment = *p.RequireSectorAlignment
	}
	if p.Threshold != nil && !changed(FlagThreshold) {
		c.EntropyThreshold = *p.Threshold
	}
	if p.Window != "" && !changed(FlagWindow) {
		n, err := ParseSize(p.Window)
		if err != nil {
			return fmt.Errorf("window: %w", err)
		}
		c.SampleWindow = n
	}
	if p.Workers != 0 && !changed(FlagWorkers) {
		c.Workers = p.Workers
	}
	if p.Queue != 0 && !changed(FlagQueue) {
		c.QueueCapacity = p.Queue
	}
	if p.FollowSymlinks != nil && !changed(FlagFollowSymlinks) {
		c.FollowSymlinks = *p.FollowSymlinks
	}
	if p.OneFileSystem != nil && !changed(FlagOneFileSystem) {
		c.OneFileSystem = *p.OneFileSystem
	}
	if len(p.Exclude) > 0 && !changed(FlagExclude) {
		c.ExcludePatterns = append([]string(nil), p.Exclude...)
	}
	if p.Sniff != nil && !changed(FlagNoSniff) {
		c.SniffTypes = *p.Sniff
	}
	if p.ShowKnown != nil && !changed(FlagShowKnown) {
		c.ReportKnownTypes = *p.ShowKnown
	}
	if len(p.KnownTypes) > 0 && !changed(FlagKnownType) {
		c.KnownTypes = append([]string(nil), p.KnownTypes...)
	}
	return nil
}

// ParseSize parses a human-readable byte size such as "10MiB", "512" or
// "1.5 GB".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}
	return int64(n), nil
}
