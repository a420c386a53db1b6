// Package process runs external analysis programs declared in tools.yaml.
package process
