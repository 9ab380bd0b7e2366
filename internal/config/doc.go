// Package config holds the settings of a tchunt scan.
//
// Settings come from command-line flags. An optional YAML profile file,
// read only when its path is given explicitly, can supply defaults for all
// roots and overrides for individual roots; flags set on the command line
// always win over the file.
package config
